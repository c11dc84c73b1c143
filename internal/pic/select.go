package pic

// Select picks the best available controller in preference order:
// x2APIC, then xAPIC, falling back to the legacy 8259 pair when the
// caller reports no APIC. Only apicPresent decides between an APIC
// and the 8259 pair; CPUID is consulted only to choose x2APIC over
// xAPIC, and the platform's ACPI MADT is not parsed by this core (see
// internal/boot). apicPresent and ioapicBase come from the caller's
// Multiboot2/ACPI discovery.
func Select(apicPresent bool, lapicBase, ioapicBase uintptr, vectorBase byte) (Controller, Kind) {
	if !apicPresent {
		return NewLegacy8259(vectorBase), Kind8259
	}
	if SupportsX2APIC() {
		return NewLocalAPIC(lapicBase, ioapicBase, true, vectorBase), KindX2APIC
	}
	return NewLocalAPIC(lapicBase, ioapicBase, false, vectorBase), KindAPIC
}
