package codec

import (
	"bytes"
	"fmt"
)

// PutString 将 s 写入定长字段 dst，右侧补零；超长时返回错误而不是截断
func PutString(dst []byte, s string) error {
	if len(s) > len(dst) {
		return fmt.Errorf("%w: %d bytes do not fit a %d-byte field", ErrBadRecordValue, len(s), len(dst))
	}
	n := copy(dst, s)
	clear(dst[n:])
	return nil
}

// CString 定长字符字段转文本：截断到第一个零字节，没有零字节时使用整个宽度
func CString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		return string(field[:i])
	}
	return string(field)
}
