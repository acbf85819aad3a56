package process

import (
	"fmt"
	"os"
	"os/exec"
	"testing"
)

func TestAlive(t *testing.T) {
	for _, pid := range []int{0, -1, -123} {
		t.Run(fmt.Sprintf("invalid pid (%d)", pid), func(t *testing.T) {
			if Alive(pid) {
				t.Errorf("pid %d should not be alive", pid)
			}
		})
	}
	t.Run("current process", func(t *testing.T) {
		if pid := os.Getpid(); !Alive(pid) {
			t.Errorf("current pid (%d) should be alive", pid)
		}
	})
	t.Run("reaped process", func(t *testing.T) {
		cmd := exec.Command("true")
		if err := cmd.Run(); err != nil {
			t.Fatal(err)
		}
		if exitedPID := cmd.ProcessState.Pid(); Alive(exitedPID) {
			t.Errorf("pid %d should not be alive", exitedPID)
		}
	})
}
