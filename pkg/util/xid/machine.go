package xid

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"net/netip"
	"os"
	"strconv"
)

// 可替换，仅用于测试
var (
	osHostname        = os.Hostname
	netInterfaceAddrs = net.InterfaceAddrs
)

const (
	// EnvMachineID 显式指定机器 ID（0~65535）
	EnvMachineID = "RSEMAPHORE_MACHINE_ID"
	EnvPodName   = "POD_NAME"
	EnvHostname  = "HOSTNAME"
)

// DefaultMachineID 按以下顺序取第一个可用值：
//
//  1. RSEMAPHORE_MACHINE_ID
//  2. POD_NAME 的 FNV 哈希
//  3. HOSTNAME 的 FNV 哈希
//  4. os.Hostname() 的 FNV 哈希
//  5. 私有 IPv4 地址的低 16 位
//
// 同一信号量的多个实例只要机器 ID 不同，生成的代际标签就不会冲突。
func DefaultMachineID() (uint16, error) {
	if s := os.Getenv(EnvMachineID); s != "" {
		id, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("xid: invalid %s value %q: %w", EnvMachineID, s, err)
		}
		return uint16(id), nil
	}
	for _, env := range []string{EnvPodName, EnvHostname} {
		if v := os.Getenv(env); v != "" {
			return hashToMachineID(v), nil
		}
	}

	hostname, hostErr := osHostname()
	if hostErr == nil && hostname != "" {
		return hashToMachineID(hostname), nil
	}
	if hostErr == nil {
		hostErr = errors.New("empty hostname")
	}

	ip, err := privateIPv4()
	if err != nil {
		return 0, fmt.Errorf("xid: no machine ID source (hostname: %v): %w", hostErr, err)
	}
	b := ip.As4()
	return uint16(b[2])<<8 | uint16(b[3]), nil
}

// hashToMachineID FNV-32a 高低 16 位异或
func hashToMachineID(s string) uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum32()
	return uint16(sum>>16) ^ uint16(sum)
}

func privateIPv4() (netip.Addr, error) {
	addrs, err := netInterfaceAddrs()
	if err != nil {
		return netip.Addr{}, err
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipnet.IP)
		if !ok {
			continue
		}
		ip = ip.Unmap()
		if ip.Is4() && !ip.IsLoopback() && (ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
			return ip, nil
		}
	}
	return netip.Addr{}, ErrNoPrivateAddress
}
