//go:build linux

package enrich

import (
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// fileOwner 取文件当前属主的用户名。
// uid 查不到账号时退回数字 uid，至少留下可追溯的线索。
func fileOwner(path string) (string, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return "", err
	}
	uid := strconv.FormatUint(uint64(st.Uid), 10)
	u, err := user.LookupId(uid)
	if err != nil {
		return uid, nil
	}
	return u.Username, nil
}
