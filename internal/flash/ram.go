package flash

// RAMDevice is an in-memory Device used by tests, host tooling, and
// non-TinyGo builds. It behaves like real NOR flash: erased bytes read as
// 0xFF, and Program can only clear bits (never set them), so a buggy
// double-program without an intervening erase is caught by the same
// invariant real flash enforces.
type RAMDevice struct {
	mem []byte
}

// NewRAMDevice returns a RAMDevice of the given size, fully erased.
func NewRAMDevice(size uint32) *RAMDevice {
	d := &RAMDevice{mem: make([]byte, size)}
	for i := range d.mem {
		d.mem[i] = 0xFF
	}
	return d
}

func (d *RAMDevice) Size() uint32 { return uint32(len(d.mem)) }

func (d *RAMDevice) ReadAt(p []byte, off uint32) error {
	if uint64(off)+uint64(len(p)) > uint64(len(d.mem)) {
		return ErrOutOfRange
	}
	copy(p, d.mem[off:])
	return nil
}

func (d *RAMDevice) EraseSector(off uint32) error {
	start := AlignSector(off)
	if uint64(start)+SectorSize > uint64(len(d.mem)) {
		return ErrOutOfRange
	}
	for i := uint32(0); i < SectorSize; i++ {
		d.mem[start+i] = 0xFF
	}
	return nil
}

func (d *RAMDevice) Program(off uint32, p []byte) error {
	if uint64(off)+uint64(len(p)) > uint64(len(d.mem)) {
		return ErrOutOfRange
	}
	for i, b := range p {
		cur := d.mem[off+uint32(i)]
		if cur&b != b {
			// Programming would need to set a bit that's currently 0;
			// real NOR flash cannot do that without an erase.
			return ErrNotErased
		}
		d.mem[off+uint32(i)] = cur & b
	}
	return nil
}
