package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error     errorInfo `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// envelope 传感器与植物接口使用的成功响应
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func success(data any) envelope {
	return envelope{Status: "success", Data: data}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON 解析请求体，多余字段忽略
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return badRequest("request body is required")
	}
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case errors.Is(err, io.EOF):
		return badRequest("request body is required")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return badRequest("invalid JSON body: unexpected end of input")
	}
	return err
}

// decodeFeatures 读取 names 中列出的数值字段。缺失或为 null 的字段留空，
// 由特征组装报告缺失；其它字段忽略。
func decodeFeatures(r *http.Request, names []string) (map[string]float64, error) {
	var body map[string]json.RawMessage
	if err := decodeJSON(r, &body); err != nil {
		return nil, err
	}
	raw := make(map[string]float64, len(names))
	for _, name := range names {
		v, ok := body[name]
		if !ok || string(v) == "null" {
			continue
		}
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return nil, badRequest(fmt.Sprintf("field %s must be a number", name))
		}
		raw[name] = f
	}
	return raw, nil
}
