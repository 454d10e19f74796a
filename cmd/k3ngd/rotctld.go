package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/w1xm/k3ng_interface/k3ng"
	"go.uber.org/zap"
)

// Hamlib return codes, negated on the wire.
const (
	rprtOK      = 0
	rprtTimeout = -5
	rprtIO      = -6
	rprtProto   = -8
	rprtRejects = -9
	rprtInvalid = -22
)

func (s *Server) ListenRotctld(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("rotctld listening", zap.String("addr", ln.Addr().String()))
	return s.serveRotctld(ctx, ln)
}

func (s *Server) serveRotctld(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info("shutdown; closing rotctld socket")
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("failed to accept", zap.Error(err))
			continue
		}
		go s.handleRotctld(conn)
	}
}

func rprtFor(err error) int {
	switch k3ng.KindOf(err) {
	case k3ng.KindUnknown:
		return rprtOK
	case k3ng.InvalidArgument, k3ng.InvalidCommand:
		return rprtInvalid
	case k3ng.NoResponse:
		return rprtTimeout
	case k3ng.DeviceRejected:
		return rprtRejects
	case k3ng.MalformedReply:
		return rprtProto
	}
	return rprtIO
}

func (s *Server) handleRotctld(conn net.Conn) {
	defer conn.Close()
	logger := s.logger.With(zap.Stringer("remote", conn.RemoteAddr()))
	logger.Info("accepted rotctld connection")
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		// Two forms of command: single character, or "+\" followed by command name.
		cmd := strings.TrimRight(scanner.Text(), "\r")
		var args []string
		var extended bool
		if len(cmd) == 0 {
			continue
		} else if len(cmd) > 2 && cmd[0:2] == `+\` {
			extended = true
			parts := strings.Fields(cmd)
			cmd = parts[0][2:]
			args = parts[1:]
			fmt.Fprintf(conn, "%s:\n", cmd)
		} else if cmd[0] == '\\' {
			parts := strings.Fields(cmd)
			cmd = parts[0][1:]
			args = parts[1:]
		} else {
			// Space after command is optional.
			if len(cmd) > 1 {
				args = strings.Fields(cmd[1:])
			}
			cmd = string(cmd[0])
		}
		logger.Debug("rotctld command", zap.String("cmd", cmd), zap.Strings("args", args))
		rprt := rprtOK
		switch cmd {
		case "1", "dump_caps":
			fmt.Fprintf(conn, `Model name: K3NG
Mfg name: K3NG
Rot type: Az-El
Min Azimuth: 0.00
Max Azimuth: %.2f
Min Elevation: 0.00
Max Elevation: %.2f
Can set Position: Y
Can get Position: Y
Can Stop: Y
Can Park: Y
Can Reset: N
Can Move: Y
Can get Info: Y
`, k3ng.MaxAzimuth, k3ng.MaxElevation)
		case "_", "get_info":
			var v string
			rprt = rprtFor(s.do("version", func() error {
				var err error
				v, err = s.dev.Version()
				return err
			}))
			if rprt == rprtOK {
				fmt.Fprintf(conn, "K3NG %s\n", v)
			}
		case "S", "stop":
			extended = true // always print RPRT
			rprt = rprtFor(s.do("stop", s.dev.Stop))
		case "K", "park":
			extended = true
			rprt = rprtFor(s.do("park", func() error {
				_, err := s.dev.Park()
				return err
			}))
		case "P", "set_pos":
			extended = true
			if len(args) != 2 {
				rprt = rprtInvalid
				break
			}
			az, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				rprt = rprtInvalid
				break
			}
			el, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				rprt = rprtInvalid
				break
			}
			if az < 0 {
				az += 360
			}
			rprt = rprtFor(s.do("set azimuth", func() error { return s.dev.SetAzimuthPosition(az) }))
			if rprt == rprtOK {
				rprt = rprtFor(s.do("set elevation", func() error { return s.dev.SetElevationPosition(el) }))
			}
		case "M", "move":
			extended = true
			if len(args) != 2 {
				rprt = rprtInvalid
				break
			}
			dir, err := strconv.Atoi(args[0])
			if err != nil {
				rprt = rprtInvalid
				break
			}
			// The controller moves at its own speed; the speed argument is
			// only checked for form.
			if _, err := strconv.Atoi(args[1]); err != nil {
				rprt = rprtInvalid
				break
			}
			var f func() error
			switch dir {
			case 2:
				f = s.dev.RotateUp
			case 4:
				f = s.dev.RotateDown
			case 8:
				f = s.dev.RotateCCW
			case 16:
				f = s.dev.RotateCW
			default:
				rprt = rprtInvalid
			}
			if f != nil {
				rprt = rprtFor(s.do("move", f))
			}
		case "p", "get_pos":
			status, _ := s.Status()
			// A failed poll leaves only the last good position.
			if status.err != nil {
				rprt = rprtFor(status.err)
				break
			}
			if extended {
				fmt.Fprintf(conn, "Azimuth: %.6f\nElevation: %.6f\n", status.AzimuthPosition(), status.ElevationPosition())
			} else {
				fmt.Fprintf(conn, "%.6f\n%.6f\n", status.AzimuthPosition(), status.ElevationPosition())
			}
		default:
			rprt = rprtInvalid
		}
		if extended || rprt != rprtOK {
			fmt.Fprintf(conn, "RPRT %d\n", rprt)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("reading rotctld connection", zap.Error(err))
	}
}
