package errors

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006

	// 游戏规则错误 (2000-2999)
	ErrWrongPhase        ErrorCode = 2000
	ErrGameFull          ErrorCode = 2001
	ErrAlreadyRegistered ErrorCode = 2002
	ErrGameNotFound      ErrorCode = 2003
	ErrPlayerNotFound    ErrorCode = 2004
	ErrPlayerNotAlive    ErrorCode = 2005
	ErrHunterNotAlive    ErrorCode = 2006
	ErrTargetNotAlive    ErrorCode = 2007
	ErrCannotSelfKill    ErrorCode = 2008
	ErrNotYourTarget     ErrorCode = 2009
	ErrNotCheckedIn      ErrorCode = 2010
	ErrGameHalted        ErrorCode = 2011
	ErrNotEnoughPlayers  ErrorCode = 2012

	// 声明校验错误 (3000-3999)
	ErrInvalidPayload           ErrorCode = 3000
	ErrSignatureMismatch        ErrorCode = 3001
	ErrStaleTimestamp           ErrorCode = 3002
	ErrTooFarAway               ErrorCode = 3003
	ErrNoProximityCorroboration ErrorCode = 3004
	ErrOutsideMeetingPoint      ErrorCode = 3005
	ErrInvalidCoordinate        ErrorCode = 3006

	// 链上结算错误 (4000-4999)
	ErrChainSubmit    ErrorCode = 4000
	ErrChainTimeout   ErrorCode = 4001
	ErrChainRejected  ErrorCode = 4002
	ErrChainNotReady  ErrorCode = 4003
	ErrTxAlreadyFinal ErrorCode = 4004

	// 通信错误 (5000-5999)
	ErrWebSocketSend    ErrorCode = 5000
	ErrWebSocketClosed  ErrorCode = 5001
	ErrMessageFormat    ErrorCode = 5002
	ErrNotAuthenticated ErrorCode = 5003

	// 数据库错误 (6000-6999)
	ErrDatabaseConnect ErrorCode = 6000
	ErrDatabaseQuery   ErrorCode = 6001
	ErrDatabaseInsert  ErrorCode = 6002
	ErrDatabaseUpdate  ErrorCode = 6003
	ErrDataIntegrity   ErrorCode = 6004

	// 配置错误 (7000-7999)
	ErrConfigLoad     ErrorCode = 7000
	ErrConfigParse    ErrorCode = 7001
	ErrConfigValidate ErrorCode = 7002
	ErrConfigMissing  ErrorCode = 7003

	// 安全错误 (8000-8999)
	ErrAuthentication    ErrorCode = 8000
	ErrAuthorization     ErrorCode = 8001
	ErrTokenExpired      ErrorCode = 8002
	ErrTokenInvalid      ErrorCode = 8003
	ErrRateLimitExceeded ErrorCode = 8004

	// 致命不变量错误 (9000-9999)
	ErrCycleCorrupted      ErrorCode = 9000
	ErrDuplicatePlayerNum  ErrorCode = 9001
	ErrScheduleInvalid     ErrorCode = 9002
	ErrPhaseTransition     ErrorCode = 9003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:          "未知错误",
	ErrInvalidParam:     "无效的参数",
	ErrNotFound:         "资源未找到",
	ErrAlreadyExists:    "资源已存在",
	ErrPermissionDenied: "权限不足",
	ErrTimeout:          "操作超时",
	ErrCanceled:         "操作已取消",

	// 游戏规则错误
	ErrWrongPhase:        "当前阶段不允许此操作",
	ErrGameFull:          "游戏人数已满",
	ErrAlreadyRegistered: "已经报名过该游戏",
	ErrGameNotFound:      "游戏不存在",
	ErrPlayerNotFound:    "玩家未注册",
	ErrPlayerNotAlive:    "玩家已被淘汰",
	ErrHunterNotAlive:    "猎人已被淘汰",
	ErrTargetNotAlive:    "目标已被淘汰",
	ErrCannotSelfKill:    "不能猎杀自己",
	ErrNotYourTarget:     "不是你的目标",
	ErrNotCheckedIn:      "尚未完成签到",
	ErrGameHalted:        "游戏已被冻结，等待人工处理",
	ErrNotEnoughPlayers:  "报名人数不足",

	// 声明校验错误
	ErrInvalidPayload:           "无效的扫码数据",
	ErrSignatureMismatch:        "签名验证失败",
	ErrStaleTimestamp:           "消息时间戳已过期",
	ErrTooFarAway:               "距离目标太远",
	ErrNoProximityCorroboration: "缺少近距离证明",
	ErrOutsideMeetingPoint:      "不在集合点范围内",
	ErrInvalidCoordinate:        "无效的坐标",

	// 链上结算错误
	ErrChainSubmit:    "链上交易提交失败",
	ErrChainTimeout:   "链上交易超时",
	ErrChainRejected:  "链上交易被拒绝",
	ErrChainNotReady:  "结算服务不可用",
	ErrTxAlreadyFinal: "交易已处于终态",

	// 通信错误
	ErrWebSocketSend:    "WebSocket发送失败",
	ErrWebSocketClosed:  "WebSocket连接已关闭",
	ErrMessageFormat:    "消息格式错误",
	ErrNotAuthenticated: "连接未完成认证",

	// 数据库错误
	ErrDatabaseConnect: "数据库连接失败",
	ErrDatabaseQuery:   "数据库查询失败",
	ErrDatabaseInsert:  "数据库插入失败",
	ErrDatabaseUpdate:  "数据库更新失败",
	ErrDataIntegrity:   "数据完整性错误",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",

	// 安全错误
	ErrAuthentication:    "认证失败",
	ErrAuthorization:     "授权失败",
	ErrTokenExpired:      "令牌已过期",
	ErrTokenInvalid:      "无效的令牌",
	ErrRateLimitExceeded: "请求频率超限",

	// 致命不变量错误
	ErrCycleCorrupted:     "目标链结构已损坏",
	ErrDuplicatePlayerNum: "玩家编号重复",
	ErrScheduleInvalid:    "缩圈计划不合法",
	ErrPhaseTransition:    "非法的阶段转换",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`    // 错误码
	Message string       `json:"message"` // 错误消息
	Details string       `json:"details"` // 详细信息
	Cause   error        `json:"-"`       // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/hunt-game/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code >= 1001 && e.Code <= 1003:
		return 400 // Bad Request
	case e.Code == ErrNotFound, e.Code == ErrGameNotFound, e.Code == ErrPlayerNotFound:
		return 404 // Not Found
	case e.Code == ErrPermissionDenied:
		return 403 // Forbidden
	case e.Code == ErrTimeout:
		return 408 // Request Timeout
	case e.Code >= 2000 && e.Code <= 3999:
		return 422 // Unprocessable Entity（规则/校验拒绝）
	case e.Code >= 8000 && e.Code <= 8003:
		return 401 // Unauthorized
	case e.Code == ErrRateLimitExceeded:
		return 429 // Too Many Requests
	case e.Code >= 6000 && e.Code <= 6999:
		return 503 // Service Unavailable
	default:
		return 500 // Internal Server Error
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrTimeout,
		ErrChainSubmit,
		ErrChainTimeout,
		ErrChainNotReady,
		ErrDatabaseConnect:
		return true
	default:
		return false
	}
}

// IsFatal 判断是否为致命错误（冻结整场比赛，等待人工介入）
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	return code >= 9000 && code <= 9999
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
