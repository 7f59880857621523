package serial

import "testing"

func TestListPorts(t *testing.T) {
	pp, err := ListPorts()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range pp {
		t.Log(p)
	}
}

func TestDetailedPorts(t *testing.T) {
	pp, err := DetailedPorts()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range pp {
		t.Logf("%s usb=%v vid=%s pid=%s", p.Name, p.IsUSB, p.VID, p.PID)
	}
}
