// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package host resolve "host:port" em uma lista de endereços e produz
// streams TCP para o servidor de pixelflut, preferindo IPv6 quando
// disponível e opcionalmente vinculando uma interface ou IP de origem.
package host

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/nishisan-dev/flut/internal/ferrors"
)

// Host representa um destino resolvido: uma lista ordenada de endereços IP,
// uma interface/IP de bind opcional e a porta TCP.
type Host struct {
	Addresses []net.IP
	Bind      string // interface de rede ou IP de origem; "" desabilita bind
	Port      uint16
	DSCP      int // code point RFC 2474/4594 aplicado a cada stream; 0 desabilita
}

// Resolve interpreta "host:port" — host literal IPv4, IPv6 entre colchetes,
// ou nome DNS — e produz um Host. Se o host for literal a lista de
// endereços é um singleton; caso contrário realiza uma consulta de nome e
// mantém todas as respostas. Quando qualquer resposta é IPv6, respostas
// IPv4 são descartadas (preferência por v6).
func Resolve(hostport, bind string) (*Host, error) {
	hostPart, portPart, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("%w: bad host:port %q: %v", ferrors.ErrConfig, hostport, err)
	}
	if portPart == "" {
		return nil, fmt.Errorf("%w: missing port in %q", ferrors.ErrConfig, hostport)
	}
	portNum, err := strconv.ParseUint(portPart, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid port %q: %v", ferrors.ErrConfig, portPart, err)
	}

	var addrs []net.IP
	if lit := net.ParseIP(hostPart); lit != nil {
		addrs = []net.IP{lit}
	} else {
		ips, err := net.LookupIP(hostPart)
		if err != nil {
			return nil, fmt.Errorf("%w: resolving %q: %v", ferrors.ErrConfig, hostPart, err)
		}
		addrs = ips
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no addresses for %q", ferrors.ErrConfig, hostPart)
	}

	addrs = preferIPv6(addrs)

	if bind != "" {
		if err := checkBindFamily(bind, addrs); err != nil {
			return nil, err
		}
	}

	return &Host{
		Addresses: addrs,
		Bind:      bind,
		Port:      uint16(portNum),
	}, nil
}

// preferIPv6 descarta endereços IPv4 se pelo menos um endereço IPv6 estiver
// presente na lista.
func preferIPv6(addrs []net.IP) []net.IP {
	hasV6 := false
	for _, a := range addrs {
		if a.To4() == nil {
			hasV6 = true
			break
		}
	}
	if !hasV6 {
		return addrs
	}
	out := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if a.To4() == nil {
			out = append(out, a)
		}
	}
	return out
}

// checkBindFamily falha com BadHost se bind é um literal IP de família
// incompatível com todo endereço resolvido.
func checkBindFamily(bind string, addrs []net.IP) error {
	bindIP := net.ParseIP(bind)
	if bindIP == nil {
		return nil // nome de interface, não dá pra checar família sem abrir socket
	}
	bindIsV4 := bindIP.To4() != nil
	for _, a := range addrs {
		if (a.To4() != nil) != bindIsV4 {
			return fmt.Errorf("%w: bind address %s family mismatches resolved address %s", ferrors.ErrConfig, bind, a)
		}
	}
	return nil
}

// NewStream escolhe um endereço aleatoriamente, constrói um socket TCP da
// família correspondente, opcionalmente vincula bind, e conecta. Falhas são
// devolvidas ao chamador sem retry nesta camada.
func (h *Host) NewStream() (net.Conn, error) {
	addr := h.Addresses[rand.Intn(len(h.Addresses))]

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if h.Bind != "" {
		localAddr, err := resolveLocalAddr(h.Bind, addr)
		if err != nil {
			return nil, err
		}
		dialer.LocalAddr = localAddr
	}

	target := net.JoinHostPort(addr.String(), strconv.Itoa(int(h.Port)))
	conn, err := dialer.Dial("tcp", target)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", ferrors.ErrIO, target, err)
	}

	if err := ApplyDSCP(conn, h.DSCP); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: applying DSCP to stream: %v", ferrors.ErrIO, err)
	}
	return conn, nil
}

// resolveLocalAddr interpreta bind como um IP literal ou um nome de
// interface e retorna o *net.TCPAddr correspondente para o dialer.
func resolveLocalAddr(bind string, remote net.IP) (*net.TCPAddr, error) {
	if ip := net.ParseIP(bind); ip != nil {
		return &net.TCPAddr{IP: ip}, nil
	}

	iface, err := net.InterfaceByName(bind)
	if err != nil {
		return nil, fmt.Errorf("%w: bind interface %q: %v", ferrors.ErrConfig, bind, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("%w: reading addresses of interface %q: %v", ferrors.ErrConfig, bind, err)
	}
	wantV4 := remote.To4() != nil
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if (ipNet.IP.To4() != nil) == wantV4 {
			return &net.TCPAddr{IP: ipNet.IP}, nil
		}
	}
	return nil, fmt.Errorf("%w: interface %q has no address matching remote family", ferrors.ErrConfig, bind)
}
