package interrupt

import "unsafe"

func rawAddr(p *byte) uintptr { return uintptr(unsafe.Pointer(p)) }
