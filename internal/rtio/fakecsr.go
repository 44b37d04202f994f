package rtio

// FakeCSR is a host-testable CSR backed by plain Go state, standing in for
// the memory-mapped register file on real hardware.
type FakeCSR struct {
	channels int
	regs     map[int]map[uint8]uint32
	Writes   []FakeWrite
}

// FakeWrite records one WriteReg call for assertions in tests.
type FakeWrite struct {
	Channel int
	Addr    uint8
	Data    uint32
}

// NewFakeCSR returns a FakeCSR with the given channel count, all registers
// zeroed.
func NewFakeCSR(channels int) *FakeCSR {
	f := &FakeCSR{channels: channels, regs: make(map[int]map[uint8]uint32)}
	for i := 0; i < channels; i++ {
		f.regs[i] = make(map[uint8]uint32)
	}
	return f
}

func (f *FakeCSR) WriteReg(channel int, addr uint8, data uint32) {
	f.regs[channel][addr] = data
	f.Writes = append(f.Writes, FakeWrite{Channel: channel, Addr: addr, Data: data})
}

func (f *FakeCSR) ReadReg(channel int, addr uint8) uint32 {
	return f.regs[channel][addr]
}

func (f *FakeCSR) ChannelCount() int {
	return f.channels
}
