package api

// ResCode 定义返回码类型
type ResCode int64

// 定义一些返回码示例,可根据业务需求自定义
const (
	CodeSuccess      ResCode = 0
	CodeInvalidParam ResCode = 4000
	CodeNotReady     ResCode = 4030

	CodeServerBusy ResCode = 5000
)

var codeMsgMap = map[ResCode]string{
	CodeSuccess:      "success",
	CodeInvalidParam: "请求参数错误",
	CodeNotReady:     "服务未就绪",
	CodeServerBusy:   "服务繁忙",
}

func (c ResCode) Msg() string {
	msg, ok := codeMsgMap[c]
	if !ok {
		msg = codeMsgMap[CodeServerBusy]
	}
	return msg
}
