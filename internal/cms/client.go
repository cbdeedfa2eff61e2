package cms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"elnksync.local/internal/app/linksync"
)

// Client 从宿主 CMS 查内容条目的当前状态。删除流程依赖它拿到
// permalink 和内容类型；条目已被物理清除时用 FallbackPermalink 重建。
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type contentResponse struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Permalink string `json:"permalink"`
}

// Get 查单个条目。404 和解析失败都返回错误，调用方会退回兜底链接。
func (c *Client) Get(ctx context.Context, itemID int64) (*linksync.ContentItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/content/%d", c.baseURL, itemID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("content lookup returned status %d", resp.StatusCode)
	}

	var body contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &linksync.ContentItem{
		ID:        body.ID,
		Type:      body.Type,
		Status:    body.Status,
		Permalink: body.Permalink,
	}, nil
}

// FallbackPermalink 在条目已不可查时按 id 重建规范化长链接。
// 宿主对这种形式的链接做永久跳转，删除匹配时足够用。
func (c *Client) FallbackPermalink(itemID int64) string {
	return fmt.Sprintf("%s/?p=%d", c.baseURL, itemID)
}
