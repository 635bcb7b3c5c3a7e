package generator

import (
	"fmt"
	"time"

	"github.com/Aafimalek/animation-genai/classifier"
)

// Correction 携带模型修复渲染失败脚本所需的信息。
type Correction struct {
	Source    string
	Diagnosis classifier.Diagnosis
	Stderr    string
}

// Turn 记录一次与模型的往返：发送的用户消息和返回的脚本。
type Turn struct {
	Kind      string    `json:"kind" yaml:"kind"`
	Request   string    `json:"request" yaml:"request"`
	Source    string    `json:"source" yaml:"source"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

const (
	TurnInitial    = "initial"
	TurnCorrection = "correction"
)

// GenerationError 表示模型调用失败或返回了不可用的文本。
// 它会终止整个请求，不在同一次尝试内重试。
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
