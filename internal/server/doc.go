// Package server は、HTTPサーバーを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// 映像の配信、カメラ操作の受け付けを担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - MJPEGストリーミングの配信 (/video/stream, /cam/stream)
//   - カメラ操作コマンドの受け付け (/video/activate など)
//   - 録画のZIPダウンロード
//
// 仕様:
//   - ルーティングはginを使用
//   - グレースフルシャットダウンに対応（配信中のストリームも終了させる）
//   - 複数クライアントの同時接続をサポート。各接続は独立してストアを読む
package server
