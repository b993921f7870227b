package hermes

import (
	"fmt"
	"strings"

	"lifeguard/internal/events"
)

const (
	// SubjectLifecycle is lifecycle.<container>.<event>.
	SubjectLifecycle = "lifecycle.%s.%s"

	SubjectAllLifecycle = "lifecycle.>"
)

// LifecycleSubject returns the subject for a container's lifecycle event.
// Dots and wildcards in the container ID are replaced so the ID stays a
// single subject token.
func LifecycleSubject(containerID string, kind events.Kind) string {
	if containerID == "" {
		containerID = "unknown"
	}
	token := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(containerID)
	return fmt.Sprintf(SubjectLifecycle, token, kind)
}
