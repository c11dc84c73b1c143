package vmm

import "github.com/kitsunebsd/fkernel/internal/errno"

func errOOM(op string) error {
	return errno.New(errno.ENOMEM, op, nil)
}

func errNotMapped(op string) error {
	return errno.New(errno.EFAULT, op, nil)
}
