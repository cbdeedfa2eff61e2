package elnk

import (
	"encoding/json"
	"errors"
	"fmt"
)

// elnk.pro 的创建响应在不同接口版本下有四种形态：
//
//	{"data":{"ids":[1,2,3]}}   批量（嵌套）
//	{"ids":[1,2,3]}            批量（平铺）
//	{"data":{"id":1}}          单条（嵌套），单成员批量也会被服务端折叠成这种
//	{"id":1}                   单条（平铺）
//
// 这里统一归一化成有序 id 序列。嵌套和平铺两种形态同样合法，
// 先查嵌套再查平铺（远端版本策略未知，两种都必须接受）。
var ErrMissingLinkID = errors.New("response is missing the link id")

// linkID 兼容数字和字符串两种 JSON 编码。
type linkID string

func (l *linkID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return errors.New("empty link id")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = linkID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*l = linkID(n.String())
	return nil
}

type createEnvelope struct {
	ID   *linkID  `json:"id"`
	IDs  []linkID `json:"ids"`
	Data *struct {
		ID  *linkID  `json:"id"`
		IDs []linkID `json:"ids"`
	} `json:"data"`
}

// extractLinkIDs 把任意一种创建响应形态归一化成有序 id 切片。
func extractLinkIDs(body []byte) ([]string, error) {
	var env createEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}

	toStrings := func(ids []linkID) []string {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != "" {
				out = append(out, string(id))
			}
		}
		return out
	}

	if env.Data != nil {
		if len(env.Data.IDs) > 0 {
			return toStrings(env.Data.IDs), nil
		}
		if env.Data.ID != nil && *env.Data.ID != "" {
			return []string{string(*env.Data.ID)}, nil
		}
	}
	if len(env.IDs) > 0 {
		return toStrings(env.IDs), nil
	}
	if env.ID != nil && *env.ID != "" {
		return []string{string(*env.ID)}, nil
	}
	return nil, ErrMissingLinkID
}
