//go:build linux

// Package rfid reads card scans from a USB RFID reader that presents itself
// as a Linux HID keyboard device (evdev), matching the kiosk hardware this
// system was built against. It falls back to a simulation mode when no
// device is present, so the rest of the system can run without hardware.
package rfid

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxInputEvent mirrors struct input_event from linux/input.h on amd64/arm64.
type linuxInputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const (
	evKey    = 0x01
	keyEnter = 28

	// EVIOCGRAB grabs (value 1) or releases (value 0) exclusive access to the device.
	eviocgrab = 0x40044590
)

// device is the Linux evdev-backed scan source.
type device struct {
	path string
	fd   int
	file *os.File
}

func openDevice(path string) (*device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening input device %s: %w", path, err)
	}
	return &device{path: path, fd: int(f.Fd()), file: f}, nil
}

// grab requests exclusive access to the device so scans aren't also
// delivered to the desktop's regular keyboard input stream.
func (d *device) grab() error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(eviocgrab), 1); errno != 0 {
		return fmt.Errorf("EVIOCGRAB on %s: %w", d.path, errno)
	}
	return nil
}

// ungrab releases exclusive access. Called on every exit path (normal
// shutdown, device loss, and process signal) so the device is never left
// grabbed if this process dies.
func (d *device) ungrab() {
	_, _, _ = unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(eviocgrab), 0)
}

func (d *device) close() {
	d.ungrab()
	_ = d.file.Close()
}

// readKeyEvents reads raw input_event records and reports key-down events
// (scancode) to onKey until the device errors out or is closed.
func (d *device) readKeyEvents(onKey func(code uint16)) error {
	buf := make([]byte, int(unsafe.Sizeof(linuxInputEvent{})))
	for {
		n, err := d.file.Read(buf)
		if err != nil {
			return err
		}
		if n < len(buf) {
			continue
		}
		ev := (*linuxInputEvent)(unsafe.Pointer(&buf[0]))
		if ev.Type == evKey && ev.Value == 1 { // key down
			onKey(ev.Code)
		}
	}
}

// findDeviceByVIDPID shells out to lsusb to check the configured vendor and
// product id are present, then scans /dev/input/event* for a device whose
// driver-reported physical path embeds those ids, matching the original
// deployment's VID:PID ffff:0035 detection strategy.
func findDeviceByVIDPID(vid, pid string) (string, bool) {
	out, err := exec.Command("lsusb").Output()
	if err != nil {
		return "", false
	}
	if !strings.Contains(string(out), fmt.Sprintf("ID %s:%s", vid, pid)) {
		return "", false
	}

	candidates, err := listEventDevices()
	if err != nil {
		return "", false
	}
	needle := strings.ToLower(vid + pid)
	for _, path := range candidates {
		phys, err := readSysAttr(path, "phys")
		if err == nil && strings.Contains(strings.ToLower(phys), needle) {
			return path, true
		}
	}
	return "", false
}

// detectGenericReader falls back to scanning /dev/input/event* for any
// device whose reported name suggests it's a card reader, mirroring the
// original deployment's name-substring heuristic ("rfid", "card",
// "reader", "hid", "usb").
func detectGenericReader() (string, bool) {
	candidates, err := listEventDevices()
	if err != nil {
		return "", false
	}
	for _, path := range candidates {
		name, err := readSysAttr(path, "name")
		if err != nil {
			continue
		}
		lower := strings.ToLower(name)
		for _, hint := range []string{"rfid", "card", "reader", "hid", "usb"} {
			if strings.Contains(lower, hint) {
				return path, true
			}
		}
	}
	return "", false
}

func listEventDevices() ([]string, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "event") {
			out = append(out, "/dev/input/"+e.Name())
		}
	}
	return out, nil
}

func readSysAttr(devicePath, attr string) (string, error) {
	name := strings.TrimPrefix(devicePath, "/dev/input/")
	buf, err := os.ReadFile("/sys/class/input/" + name + "/device/" + attr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf)), nil
}
