//go:build tinygo

package flash

/*
#include <stdint.h>
#include <stddef.h>

#define ROM_TABLE_CODE(c1, c2) ((c1) | ((c2) << 8))
#define ROM_FUNC_CONNECT_INTERNAL_FLASH ROM_TABLE_CODE('I', 'F')
#define ROM_FUNC_FLASH_EXIT_XIP         ROM_TABLE_CODE('E', 'X')
#define ROM_FUNC_FLASH_RANGE_ERASE      ROM_TABLE_CODE('R', 'E')
#define ROM_FUNC_FLASH_RANGE_PROGRAM    ROM_TABLE_CODE('R', 'P')
#define ROM_FUNC_FLASH_FLUSH_CACHE      ROM_TABLE_CODE('F', 'C')
#define ROM_FUNC_FLASH_RANGE_READ       ROM_TABLE_CODE('R', 'D')

#define BOOTROM_FUNC_TABLE_OFFSET   0x14
#define BOOTROM_WELL_KNOWN_PTR_SIZE 2
#define BOOTROM_TABLE_LOOKUP_OFFSET (BOOTROM_FUNC_TABLE_OFFSET + BOOTROM_WELL_KNOWN_PTR_SIZE)
#define RT_FLAG_FUNC_ARM_SEC 0x0004

#define FLASH_SECTOR_SIZE      4096
#define FLASH_SECTOR_ERASE_CMD 0x20
#define XIP_BASE 0x10000000u

typedef void *(*rom_table_lookup_fn)(uint32_t code, uint32_t mask);
typedef void (*flash_connect_internal_fn)(void);
typedef void (*flash_exit_xip_fn)(void);
typedef void (*flash_range_erase_fn)(uint32_t addr, size_t count, uint32_t block_size, uint8_t block_cmd);
typedef void (*flash_range_program_fn)(uint32_t addr, const uint8_t *data, size_t count);
typedef void (*flash_flush_cache_fn)(void);

static void *rom_func_lookup_inline(uint32_t code) {
    rom_table_lookup_fn rom_table_lookup =
        (rom_table_lookup_fn)(uintptr_t)*(uint16_t*)(BOOTROM_TABLE_LOOKUP_OFFSET);
    return rom_table_lookup(code, RT_FLAG_FUNC_ARM_SEC);
}

// rt_flash_program writes data to a raw flash offset (not XIP address).
static void rt_flash_program(uint32_t offset, const uint8_t *data, uint32_t len) {
    flash_connect_internal_fn connect = (flash_connect_internal_fn)rom_func_lookup_inline(ROM_FUNC_CONNECT_INTERNAL_FLASH);
    flash_exit_xip_fn exit_xip = (flash_exit_xip_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_EXIT_XIP);
    flash_range_program_fn program = (flash_range_program_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_PROGRAM);
    flash_flush_cache_fn flush = (flash_flush_cache_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_FLUSH_CACHE);
    if (!connect || !exit_xip || !program || !flush) return;

    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");

    connect();
    exit_xip();
    program(offset, data, len);
    flush();

    __asm__ volatile ("msr primask, %0" : : "r" (status));
}

// rt_flash_erase erases sector-aligned range [offset, offset+count).
static void rt_flash_erase(uint32_t offset, uint32_t count) {
    flash_connect_internal_fn connect = (flash_connect_internal_fn)rom_func_lookup_inline(ROM_FUNC_CONNECT_INTERNAL_FLASH);
    flash_exit_xip_fn exit_xip = (flash_exit_xip_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_EXIT_XIP);
    flash_range_erase_fn erase = (flash_range_erase_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_ERASE);
    flash_flush_cache_fn flush = (flash_flush_cache_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_FLUSH_CACHE);
    if (!connect || !exit_xip || !erase || !flush) return;

    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");

    connect();
    exit_xip();
    erase(offset, count, FLASH_SECTOR_SIZE, FLASH_SECTOR_ERASE_CMD);
    flush();

    __asm__ volatile ("msr primask, %0" : : "r" (status));
}

// rt_flash_read reads directly from the XIP-mapped flash window; no ROM
// call needed since reads don't require exiting XIP mode.
static void rt_flash_read(uint32_t offset, uint8_t *data, uint32_t len) {
    const uint8_t *src = (const uint8_t *)(XIP_BASE + offset);
    for (uint32_t i = 0; i < len; i++) {
        data[i] = src[i];
    }
}
*/
import "C"

import "unsafe"

// ROMDevice is a Device backed directly by the RP2350 boot ROM flash
// functions, bypassing TinyGo's machine.Flash offset translation the way
// ota/ota.go's direct ROM calls do. Base is the raw flash offset (not XIP
// address) where the region this Device represents begins.
type ROMDevice struct {
	Base uint32
	Len  uint32
}

func (d *ROMDevice) Size() uint32 { return d.Len }

func (d *ROMDevice) ReadAt(p []byte, off uint32) error {
	if uint64(off)+uint64(len(p)) > uint64(d.Len) {
		return ErrOutOfRange
	}
	if len(p) == 0 {
		return nil
	}
	C.rt_flash_read(C.uint32_t(d.Base+off), (*C.uint8_t)(unsafe.Pointer(&p[0])), C.uint32_t(len(p)))
	return nil
}

func (d *ROMDevice) EraseSector(off uint32) error {
	start := AlignSector(off)
	if uint64(start)+SectorSize > uint64(d.Len) {
		return ErrOutOfRange
	}
	C.rt_flash_erase(C.uint32_t(d.Base+start), C.uint32_t(SectorSize))
	return nil
}

func (d *ROMDevice) Program(off uint32, p []byte) error {
	if uint64(off)+uint64(len(p)) > uint64(d.Len) {
		return ErrOutOfRange
	}
	if len(p) == 0 {
		return nil
	}
	C.rt_flash_program(C.uint32_t(d.Base+off), (*C.uint8_t)(unsafe.Pointer(&p[0])), C.uint32_t(len(p)))
	return nil
}
