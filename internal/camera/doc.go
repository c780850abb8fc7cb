// Package camera カメラデバイスの開始・停止と静止画撮影を担う
//
// # 責務
// - デバイスのライフサイクル管理（開始時のウォームアップ、冪等な開始・停止）
// - 静止画1枚の撮影とJPEGバイト列の取得
// - 開始前の撮影を ErrCameraNotStarted、ドライバーの失敗を *CaptureError として区別
//
// # 仕様
// - Camera: Device を包み、開始状態を管理する
// - V4L2Device: ffmpeg経由でV4L2デバイスから1フレームを取得する（解像度・回転を指定可能）
// - MockDevice: ハードウェア無しで単色JPEGを返す。開発とテストで使用
//
// # 前提要件
//   - v4l-utils: デバイス確認に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - ffmpeg: 画像キャプチャに使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
