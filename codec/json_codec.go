package codec

import (
	"github.com/goccy/go-json"
	"github.com/stardustagi/gptshell/libs/errors"
	"github.com/stardustagi/gptshell/llm/models"
)

// ICodec 历史记录的编解码接口
type ICodec interface {
	// Decode 解码
	Decode(data []byte) ([]models.Session, error)
	Encode(sessions []models.Session) ([]byte, error)
}

type JsonCodec struct {
	indent bool
}

func NewJsonCodec() ICodec {
	return &JsonCodec{}
}

// NewIndentedJsonCodec writes human-readable backups.
func NewIndentedJsonCodec() ICodec {
	return &JsonCodec{indent: true}
}

func (c *JsonCodec) Decode(data []byte) ([]models.Session, error) {
	var sessions []models.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, errors.Wrap(errors.KindParse, err, "invalid history backup")
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

func (c *JsonCodec) Encode(sessions []models.Session) ([]byte, error) {
	if sessions == nil {
		sessions = []models.Session{}
	}
	var (
		data []byte
		err  error
	)
	if c.indent {
		data, err = json.MarshalIndent(sessions, "", "  ")
	} else {
		data, err = json.Marshal(sessions)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindParse, err, "failed to encode history")
	}
	return data, nil
}
