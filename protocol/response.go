package protocol

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/gptshell/libs/errors"
)

const successMsg = "ok"

// 返回定义
type BaseResponse struct {
	ErrCode int         `json:"errcode"`
	ErrMsg  string      `json:"errmsg,omitempty"`
	Kind    string      `json:"kind,omitempty"`
	Status  int         `json:"status,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PlanData 预估结果（--what-if）
type PlanData struct {
	Task           string      `json:"task"`
	Endpoint       string      `json:"endpoint"`
	CredentialPath string      `json:"credential_path"`
	EstimatedCost  float64     `json:"estimated_cost"`
	Body           interface{} `json:"body"`
	Files          []string    `json:"files,omitempty"`
}

// NewResponse builds the envelope for data or err; a nil err means success.
func NewResponse(err error, data any) BaseResponse {
	se := errors.From(err)
	if se == nil {
		return BaseResponse{ErrCode: 0, ErrMsg: successMsg, Data: data}
	}
	return BaseResponse{
		ErrCode: se.Code(),
		ErrMsg:  se.Msg(),
		Kind:    se.Kind().String(),
		Status:  se.Status(),
	}
}

// Write 输出 JSON 信封到命令行
func Write(w io.Writer, err error, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewResponse(err, data))
}

// Response 输出 JSON 信封到 HTTP
func Response(c echo.Context, err error, data any) error {
	return c.JSON(http.StatusOK, NewResponse(err, data))
}
