package entity

import (
	"errors"
	"fmt"
)

// ErrTenantContextMissing is returned when a multi-tenant operation runs
// without a tenant in scope.  No statement has been issued when it is
// returned.
var ErrTenantContextMissing = errors.New("entity: multi-tenant operation without tenant in scope")

// ConfigurationError reports a schema the engine cannot serve.
type ConfigurationError struct {
	Table  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("entity %s: configuration: %s", e.Table, e.Reason)
}
