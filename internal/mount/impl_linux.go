//go:build linux

package mount

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/Hara602/fsSentry/internal/model"
	"github.com/Hara602/fsSentry/internal/sysutil"
	"github.com/pilebones/go-udev/netlink"
	"go.uber.org/zap"
)

type linuxWatcher struct {
	events chan model.MountEvent
	stop   chan struct{}
}

func newWatcher() Watcher {
	return &linuxWatcher{
		events: make(chan model.MountEvent, 10),
		stop:   make(chan struct{}),
	}
}

func (w *linuxWatcher) Start() (<-chan model.MountEvent, error) {
	// 监听 UDEV 事件，连接 NETLINK_KOBJECT_UEVENT
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, err
	}

	queue := make(chan netlink.UEvent)
	errChan := make(chan error)
	quit := conn.Monitor(queue, errChan, nil)

	go func() {
		defer conn.Close()
		for {
			select {
			case <-w.stop:
				close(quit)
				return

			case <-errChan:
				// 忽略底层网络错误，继续尝试
				continue

			case uevent := <-queue:
				w.handleUdevEvent(uevent)
			}
		}
	}()
	return w.events, nil
}

func (w *linuxWatcher) Stop() {
	close(w.stop)
}

func (w *linuxWatcher) handleUdevEvent(uevent netlink.UEvent) {
	// 只关心块设备分区的插拔
	if uevent.Env["SUBSYSTEM"] != "block" || uevent.Env["DEVTYPE"] != "partition" {
		return
	}
	if uevent.Action == "add" {
		go w.handleAdd(uevent)
	} else if uevent.Action == "remove" {
		w.events <- model.MountEvent{
			Action:     "remove",
			DevicePath: uevent.Env["DEVNAME"],
			TimeStamp:  time.Now(),
		}
	}
}

func (w *linuxWatcher) handleAdd(uevent netlink.UEvent) {
	// UEvent Env 示例: DEVNAME=/dev/sdb1
	devName := uevent.Env["DEVNAME"]
	if !strings.HasPrefix(devName, "/dev") {
		devName = "/dev/" + devName
	}

	// Udev 事件触发时文件系统可能还没挂载好，轮询等待
	mountPoint := waitForMount(devName)
	if mountPoint == "" {
		sysutil.Log.Warn("Device detected but mount point not found (timeout)", zap.String("dev", devName))
		return
	}

	w.events <- model.MountEvent{
		Action:     "add",
		DevicePath: devName,
		MountPoint: mountPoint,
		TimeStamp:  time.Now(),
	}
}

// waitForMount 轮询 /proc/mounts 等待设备出现，最多 3 秒
func waitForMount(devPath string) string {
	for i := 0; i < 30; i++ {
		f, err := os.Open("/proc/mounts")
		if err != nil {
			return ""
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) >= 2 && fields[0] == devPath {
				f.Close()
				return fields[1]
			}
		}
		f.Close()
		time.Sleep(100 * time.Millisecond)
	}
	return ""
}
