package elnk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"elnksync.local/internal/platform/metrics"
)

const DefaultBaseURL = "https://elnk.pro/api"

// APIError 携带远端返回的人类可读错误信息（比如“alias 已被占用”）。
// 手动路径会把 Message 原样透传给调用方。
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client 是 elnk.pro 链接接口的同步封装。每次调用一个固定 30s 超时的
// HTTP 往返，不做任何重试——重试策略属于上层对账逻辑。
type Client struct {
	apiKey    string
	baseURL   string
	domainID  string // 可选，创建时附带
	projectID string // 可选
	http      *http.Client
}

type Option func(*Client)

func WithDomainID(id string) Option {
	return func(c *Client) { c.domainID = id }
}

func WithProjectID(id string) Option {
	return func(c *Client) { c.projectID = id }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LinkDetails 对应 GET /links/{id} 的 data 字段。
type LinkDetails struct {
	Slug     string // data.url：短链路径段，缺失视为硬失败
	DomainID int64  // data.domain_id：0 表示使用 elnk.pro 默认域名
}

// DomainDetails 对应 GET /domains/{id} 的 data 字段。
// Scheme 远端已带分隔符（如 "https://"），直接拼接。
type DomainDetails struct {
	Scheme string
	Host   string
}

// CreateLink 创建单条短链，返回远端 link id。
// alias 为空时由远端生成随机别名；别名长度校验（≥6）由调用方负责。
func (c *Client) CreateLink(ctx context.Context, destinationURL, alias string) (string, error) {
	form := url.Values{}
	form.Set("location_url", destinationURL)
	// 可选字段为空时整个不发送：远端对显式空值敏感。
	if alias != "" {
		form.Set("url", alias)
	}
	ids, err := c.create(ctx, "create", form)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// CreateBulkLinks 一次创建一批短链。目的地按行拼接；返回的 id 序列
// 与入参顺序一一对应。单成员批量可能被远端折叠成单条响应，
// 归一化后同样得到长度为 1 的序列。
func (c *Client) CreateBulkLinks(ctx context.Context, destinationURLs []string, alias string) ([]string, error) {
	form := url.Values{}
	form.Set("is_bulk", "1")
	form.Set("location_urls", strings.Join(destinationURLs, "\n"))
	if alias != "" {
		form.Set("url", alias)
	}
	return c.create(ctx, "create_bulk", form)
}

func (c *Client) create(ctx context.Context, op string, form url.Values) ([]string, error) {
	form.Set("type", "link")
	if c.domainID != "" {
		form.Set("domain_id", c.domainID)
	}
	if c.projectID != "" {
		form.Set("project_id", c.projectID)
	}

	body, err := c.do(ctx, op, http.MethodPost, "/links", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	ids, err := extractLinkIDs(body)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrMissingLinkID
	}
	return ids, nil
}

func (c *Client) GetLinkDetails(ctx context.Context, linkID string) (LinkDetails, error) {
	body, err := c.do(ctx, "get_link", http.MethodGet, "/links/"+url.PathEscape(linkID), nil, "")
	if err != nil {
		return LinkDetails{}, err
	}

	var resp struct {
		Data struct {
			URL      string       `json:"url"`
			DomainID *json.Number `json:"domain_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return LinkDetails{}, fmt.Errorf("decode link details: %w", err)
	}

	details := LinkDetails{Slug: resp.Data.URL}
	if resp.Data.DomainID != nil {
		if n, err := resp.Data.DomainID.Int64(); err == nil {
			details.DomainID = n
		}
	}
	return details, nil
}

func (c *Client) GetDomainDetails(ctx context.Context, domainID int64) (DomainDetails, error) {
	body, err := c.do(ctx, "get_domain", http.MethodGet, fmt.Sprintf("/domains/%d", domainID), nil, "")
	if err != nil {
		return DomainDetails{}, err
	}

	var resp struct {
		Data struct {
			Scheme string `json:"scheme"`
			Host   string `json:"host"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return DomainDetails{}, fmt.Errorf("decode domain details: %w", err)
	}
	return DomainDetails{Scheme: resp.Data.Scheme, Host: resp.Data.Host}, nil
}

func (c *Client) DeleteLink(ctx context.Context, linkID string) error {
	_, err := c.do(ctx, "delete", http.MethodDelete, "/links/"+url.PathEscape(linkID), nil, "")
	return err
}

// FindLinkIDBySlug 全量拉取链接列表，按 slug 找回 link id。
// 只用于老数据行缺 link_id 时的回填，平时不要调它。
func (c *Client) FindLinkIDBySlug(ctx context.Context, slug string) (string, error) {
	body, err := c.do(ctx, "list", http.MethodGet, "/links", nil, "")
	if err != nil {
		return "", err
	}

	var resp struct {
		Data []struct {
			ID  linkID `json:"id"`
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode link listing: %w", err)
	}
	for _, link := range resp.Data {
		if link.URL == slug {
			return string(link.ID), nil
		}
	}
	return "", ErrMissingLinkID
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ElnkAPIDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ElnkAPIRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("elnk request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ElnkAPIRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ElnkAPIRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody, resp.StatusCode),
		}
	}

	metrics.ElnkAPIRequestsTotal.WithLabelValues(op, "ok").Inc()
	return respBody, nil
}

// errorMessage 优先取响应体里的 message 字段，取不到就退回状态码描述。
func errorMessage(body []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return fmt.Sprintf("API request failed with status code: %d", status)
}

// IsRemoteValidation 判断是不是远端 4xx 校验错误（别名太短/已被占用等）。
// 后台路径对它和传输错误一视同仁，手动路径需要区分以便透传 message。
func IsRemoteValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
