// Package sentinel キャプチャループとHTTPサーバーの間で共有される信号ストアを提供する
//
// # 責務
// - センチネル（存在そのものが値となる空ファイル）の確認・作成・削除
// - 最新フレーム（camera_out.jpg）の読み書き
// - 録画フレーム（records/*.jpg）の追加・一覧・一括削除
// - センチネルの組み合わせからカメラ状態（SLEEPING / RECORDING / ACTIVE）を導出
//
// # 使い分け
//   - FileStore: 2つのプロセスが作業ディレクトリだけを共有する構成で使用する
//   - MemoryStore: キャプチャループとサーバーを同一プロセスのゴルーチンで動かす構成で使用する
//
// # 仕様
//   - センチネルの状態はキャッシュしない。確認は毎回ストアに問い合わせる
//   - Set / Clear は冪等。既に存在するものの作成、存在しないものの削除はエラーにならない
//   - 最新フレームがまだ書かれていない場合は ErrNotAvailable を返す
//   - ロックは助言的ロック。読み手は必ずロック確認の後に読み込むこと
package sentinel
