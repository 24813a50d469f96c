//go:build !linux

package enrich

import "errors"

var errOwnerUnsupported = errors.New("file owner lookup not supported on this platform")

// 非 Linux 平台暂不做属主解析，降级为占位值
func fileOwner(path string) (string, error) {
	return "", errOwnerUnsupported
}
