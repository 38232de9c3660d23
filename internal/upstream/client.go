// Package upstream は上流コマースAPIとの連携機能を提供する。
// 認証済みユーザーのカート操作（追加・同期・件数取得）と商品サジェスト取得を含む。
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/cartsync/internal/model"
)

// 上流APIのパス。ベースURLからの相対で組み立てる。
const (
	syncPathFormat  = "/api/cart/sync/%s"
	countPathFormat = "/api/cart/count/%s"
	addPath         = "/api/cart/add"
	suggestPath     = "/api/products/suggest"
)

// Recorder は上流リクエストのメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type Recorder interface {
	RecordUpstreamRequest(op string, statusCode int)
	RecordUpstreamLatency(op string, duration time.Duration)
}

// NopRecorder は何も記録しないRecorder。テスト用。
type NopRecorder struct{}

// RecordUpstreamRequest は何もしない。
func (NopRecorder) RecordUpstreamRequest(op string, statusCode int) {}

// RecordUpstreamLatency は何もしない。
func (NopRecorder) RecordUpstreamLatency(op string, duration time.Duration) {}

// defaultMaxResponseSize はレスポンスボディの読み取り上限のデフォルト値 (1MiB)。
const defaultMaxResponseSize = 1 << 20

// Client は上流コマースAPIのクライアント。
// リトライは行わず、失敗は1回の呼び出しで終端する（呼び出し元が縮退を判断する）。
type Client struct {
	httpClient      *http.Client
	baseURL         string
	maxResponseSize int64
	logger          *slog.Logger
	recorder        Recorder
}

// NewClient はClientの新しいインスタンスを生成する。
// maxResponseSizeが0以下の場合はデフォルト値を使用する。
// recorderがnilの場合はNopRecorderを使用する。
func NewClient(httpClient *http.Client, baseURL string, maxResponseSize int64, logger *slog.Logger, recorder Recorder) *Client {
	if maxResponseSize <= 0 {
		maxResponseSize = defaultMaxResponseSize
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Client{
		httpClient:      httpClient,
		baseURL:         strings.TrimRight(baseURL, "/"),
		maxResponseSize: maxResponseSize,
		logger:          logger,
		recorder:        recorder,
	}
}

// SyncResponse はカート同期エンドポイントのレスポンス。
// Cartは上流が所有するサーバーカートの表現で、このクライアントでは不透明に扱う。
type SyncResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Cart    json.RawMessage `json:"cart"`
}

// AddResponse はカート追加エンドポイントのレスポンス。
type AddResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Cart    json.RawMessage `json:"cart"`
}

// AddRejectedError は上流がカート追加を拒否したことを表す。
// 上流レスポンスのmessageを保持し、ユーザー向けメッセージとして転用される。
type AddRejectedError struct {
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *AddRejectedError) Error() string {
	return fmt.Sprintf("upstream rejected cart add (status %d): %s", e.StatusCode, e.Message)
}

// syncRequestItem は同期リクエストに載せるカート行。AddedAtは送信しない。
type syncRequestItem struct {
	ProductID int64  `json:"productId"`
	ColorID   *int64 `json:"colorId"`
	Quantity  int    `json:"quantity"`
}

// syncRequest は同期リクエストのボディ。
type syncRequest struct {
	Items []syncRequestItem `json:"items"`
}

// addRequest はカート追加リクエストのボディ。
type addRequest struct {
	UserID    string `json:"userId"`
	ProductID int64  `json:"productId"`
	ColorID   *int64 `json:"colorId"`
	Quantity  int    `json:"quantity"`
}

// countResponse は件数取得エンドポイントのレスポンス。
type countResponse struct {
	Count int `json:"count"`
}

// SyncCart はローカルカートの全行を上流のマージエンドポイントへ送信する。
// レスポンスのsuccessフラグの判定は呼び出し元が行う。
// トランスポート障害・非2xx・デコード失敗はエラーを返す。
func (c *Client) SyncCart(ctx context.Context, userID string, items []model.CartLineItem) (*SyncResponse, error) {
	reqItems := make([]syncRequestItem, 0, len(items))
	for _, item := range items {
		reqItems = append(reqItems, syncRequestItem{
			ProductID: item.ProductID,
			ColorID:   item.ColorID,
			Quantity:  item.Quantity,
		})
	}

	body, statusCode, err := c.doJSON(ctx, "sync", http.MethodPost,
		fmt.Sprintf(syncPathFormat, url.PathEscape(userID)), syncRequest{Items: reqItems})
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("カート同期エンドポイントがステータス %d を返しました", statusCode)
	}

	var resp SyncResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("カート同期レスポンスのパースに失敗しました: %w", err)
	}

	return &resp, nil
}

// CartCount は認証済みユーザーのカート件数を取得する。
func (c *Client) CartCount(ctx context.Context, userID string) (int, error) {
	body, statusCode, err := c.doJSON(ctx, "count", http.MethodGet,
		fmt.Sprintf(countPathFormat, url.PathEscape(userID)), nil)
	if err != nil {
		return 0, err
	}
	if statusCode != http.StatusOK {
		return 0, fmt.Errorf("カート件数エンドポイントがステータス %d を返しました", statusCode)
	}

	var resp countResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("カート件数レスポンスのパースに失敗しました: %w", err)
	}

	return resp.Count, nil
}

// AddItem は認証済みユーザーのカートへ商品を追加する。
// 非2xxまたはsuccess:falseの場合は、上流メッセージを保持したAddRejectedErrorを返す。
func (c *Client) AddItem(ctx context.Context, userID string, item model.CartLineItem) (*AddResponse, error) {
	body, statusCode, err := c.doJSON(ctx, "add", http.MethodPost, addPath, addRequest{
		UserID:    userID,
		ProductID: item.ProductID,
		ColorID:   item.ColorID,
		Quantity:  item.Quantity,
	})
	if err != nil {
		return nil, err
	}

	// 失敗時もボディのmessageを拾ってユーザー向けメッセージに転用する
	var resp AddResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if statusCode < 200 || statusCode >= 300 {
			return nil, &AddRejectedError{StatusCode: statusCode}
		}
		return nil, fmt.Errorf("カート追加レスポンスのパースに失敗しました: %w", err)
	}

	if statusCode < 200 || statusCode >= 300 || !resp.Success {
		return nil, &AddRejectedError{StatusCode: statusCode, Message: resp.Message}
	}

	return &resp, nil
}

// Suggestions はキーワードに対する商品サジェスト一覧を取得する。
func (c *Client) Suggestions(ctx context.Context, keyword string) ([]model.Suggestion, error) {
	reqURL, err := url.Parse(c.baseURL + suggestPath)
	if err != nil {
		return nil, fmt.Errorf("サジェストURLの構築に失敗しました: %w", err)
	}
	q := reqURL.Query()
	q.Set("keyword", keyword)
	reqURL.RawQuery = q.Encode()

	body, statusCode, err := c.do(ctx, "suggest", http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, err
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("サジェストエンドポイントがステータス %d を返しました", statusCode)
	}

	var suggestions []model.Suggestion
	if err := json.Unmarshal(body, &suggestions); err != nil {
		return nil, fmt.Errorf("サジェストレスポンスのパースに失敗しました: %w", err)
	}

	return suggestions, nil
}

// doJSON はベースURLからの相対パスに対してJSONリクエストを実行する。
func (c *Client) doJSON(ctx context.Context, op, method, path string, reqBody interface{}) ([]byte, int, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}
	return c.do(ctx, op, method, c.baseURL+path, bodyReader)
}

// do はHTTPリクエストを実行し、ボディとステータスコードを返す。
// メトリクスにステータスとレイテンシを記録する。
func (c *Client) do(ctx context.Context, op, method, rawURL string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "Cartsync/1.0 Storefront Edge")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.recorder.RecordUpstreamLatency(op, time.Since(start))
	if err != nil {
		c.recorder.RecordUpstreamRequest(op, 0)
		c.logger.Error("上流コマースAPIの呼び出しに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil, 0, err
	}
	defer resp.Body.Close()

	c.recorder.RecordUpstreamRequest(op, resp.StatusCode)

	// レスポンスボディを読み込み（最大サイズ制限付き）
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil, resp.StatusCode, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if int64(len(respBody)) > c.maxResponseSize {
		c.logger.Error("レスポンスボディがサイズ上限を超過しました",
			slog.String("op", op),
			slog.Int64("max_response_size", c.maxResponseSize),
		)
		return nil, resp.StatusCode, fmt.Errorf("レスポンスボディがサイズ上限 %d バイトを超過しました", c.maxResponseSize)
	}

	return respBody, resp.StatusCode, nil
}
