package remotecall

import "errors"

var errBastionDisabled = errors.New("bastion is not configured")
