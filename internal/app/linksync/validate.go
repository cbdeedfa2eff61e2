package linksync

import (
	"errors"
	"strings"
)

// 手动路径的用户可见错误。后台路径从不把错误抛出自己的边界。
var (
	ErrNotConfigured    = errors.New("api key is not configured")
	ErrAliasTooShort    = errors.New("custom alias must be at least 6 characters long")
	ErrNoDestinations   = errors.New("at least one destination url is required")
	ErrRecordNotFound   = errors.New("url record not found")
	ErrShortURLExists   = errors.New("short url already recorded")
	ErrResolutionFailed = errors.New("failed to construct the short url")
)

const minAliasLength = 6

// ValidateAlias 空别名合法（远端生成随机别名）；给了就必须 ≥6 字符，
// 否则远端一定会拒，不如在发请求前挡下。
func ValidateAlias(alias string) error {
	if alias != "" && len(alias) < minAliasLength {
		return ErrAliasTooShort
	}
	return nil
}

// SplitDestinations 按行拆目的地列表，去掉首尾空白和空行。
func SplitDestinations(raw string) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
