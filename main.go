// Command h264rtp accepts H.264 Annex-B byte streams over TCP and relays
// each one to a UDP destination as RTP packets.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ausocean/h264rtp/h264"
	"github.com/ausocean/h264rtp/h264/packetizer"
	"github.com/ausocean/h264rtp/internal/config"
	"github.com/ausocean/h264rtp/internal/relay"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("could not load config")
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)
	h264.SetLogger(log.WithField("pkg", "h264"))
	packetizer.SetLogger(log.WithField("pkg", "packetizer"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server error")
	}
	log.Info("shut down")
}

// serve accepts connections until ctx is cancelled. Each connection gets its
// own UDP socket and RTP stream.
func serve(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "could not listen on %s", cfg.ListenAddr)
	}
	log.WithFields(logrus.Fields{
		"listen": ln.Addr().String(),
		"dest":   cfg.DestAddr,
		"mode":   cfg.PacketizationMode,
	}).Info("listening for h264 bytestreams")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "accept failed")
			}
			g.Go(func() error {
				handle(ctx, cfg, conn, log)
				return nil
			})
		}
	})
	return g.Wait()
}

// handle relays one byte stream. Errors end the stream but not the server.
func handle(ctx context.Context, cfg config.Config, conn net.Conn, log *logrus.Logger) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	clog := log.WithField("remote", conn.RemoteAddr().String())

	dst, err := net.Dial("udp", cfg.DestAddr)
	if err != nil {
		clog.WithError(err).Error("could not dial destination")
		return
	}
	defer dst.Close()

	r, err := relay.New(cfg, dst, clog)
	if err != nil {
		clog.WithError(err).Error("could not create relay")
		return
	}
	clog.WithField("ssrc", r.SSRC()).Info("stream started")

	if err := r.Run(ctx, conn); err != nil && ctx.Err() == nil {
		clog.WithError(err).Warn("stream failed")
	}
	s := r.Stats()
	clog.WithFields(logrus.Fields{
		"access_units":  s.AccessUnits,
		"dropped":       s.Dropped,
		"packets":       s.Packets,
		"bytes":         s.Bytes,
		"sps_ok":        s.VUI.Ok,
		"sps_rewritten": s.VUI.Rewritten,
		"sps_failed":    s.VUI.Failed,
	}).Info("stream ended")
}
