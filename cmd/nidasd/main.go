// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// nidasd is the data-plane pipeline daemon: it wires a SamplePool, a
// Dater, one or more input Channels, a Sorter, and an archiving output
// together and runs until signaled to stop. The XML configuration tree
// that would normally drive this wiring is out of scope for this core
// (§1); this binary accepts the handful of flags §6 specifies and wires a
// fixed pipeline shape from them, standing in for the object graph an XML
// factory would otherwise build.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	nidas "go.nidas.dev/core"
	"go.nidas.dev/core/ioc"
	"go.nidas.dev/core/iostream"
	"go.nidas.dev/core/processor"
	"go.nidas.dev/core/stats"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		foreground  = pflag.BoolP("foreground", "d", false, "log human-readable console lines to stderr (without -d, logs are JSON lines on stderr; syslog is not used)")
		help        = pflag.BoolP("help", "h", false, "show usage")
		archiveDir  = pflag.String("archive-dir", ".", "directory new archive files are written to")
		listenAddr  = pflag.String("listen", ":30000", "TCP address to accept raw sample connections on")
		horizon     = pflag.Duration("sort-horizon", 2*time.Second, "SampleSorter reordering horizon")
		metricsAddr = pflag.String("metrics-addr", "", "address to serve Prometheus metrics on; empty disables it")
		project     = pflag.String("project", "", "project name recorded in the archive header")
		site        = pflag.String("site", "", "site name recorded in the archive header")
	)
	pflag.Parse()

	if *help {
		fmt.Fprintln(os.Stderr, "usage: nidasd [flags]  (positional arguments are ignored; the pipeline is built from the flags)")
		pflag.PrintDefaults()
		return 0
	}

	log := newLogger(*foreground)

	registry := prometheus.NewRegistry()
	poolStats := stats.NewPool("nidas", "pool")
	daterStats := stats.NewDater("nidas", "dater")
	pctx := &nidas.PipelineContext{
		Pool: nidas.NewSamplePool(nidas.SamplePoolOptions{
			Stats: poolStats,
		}),
		Dater: nidas.NewDater(nidas.DaterOptions{
			Logger: log,
			Stats:  daterStats,
		}),
		Logger:   log,
		Registry: registry,
	}
	pctx.Dater.SetTime(time.Now().UnixMicro())
	pctx.MustRegister(poolStats.Collectors()...)
	pctx.MustRegister(daterStats.Collectors()...)

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, registry, log)
	}

	sorterStats := stats.NewSorter("nidas", "sorter")
	pctx.MustRegister(sorterStats.Collectors()...)

	sorter := nidas.NewSorter(nidas.SorterOptions{
		Horizon: *horizon,
		Stats:   sorterStats,
		Logger:  log,
	})
	defer sorter.Interrupt()

	archiver := processor.NewArchiver(iostream.Header{
		ArchiveVersion:  "1",
		SoftwareVersion: "nidasd",
		ProjectName:     *project,
		SiteName:        *site,
	}, iostream.IOStreamOptions{}, log)
	archiver.Connect(sorter)

	fileSet := ioc.NewFileSet(ioc.FileSetOptions{
		Dir:          *archiveDir,
		RollInterval: time.Hour,
	})
	if err := archiver.AddOutput(fileSet); err != nil {
		log.Error().Err(err).Msg("nidasd: failed to open archive output")
		return 1
	}

	listener, err := ioc.ListenTCP(*listenAddr)
	if err != nil {
		log.Error().Err(err).Str("addr", *listenAddr).Msg("nidasd: failed to listen")
		return 1
	}
	go acceptLoop(listener, pctx, sorter, log)

	waitForSignal(log)
	return 0
}

// acceptLoop accepts raw sample TCP connections forever, feeding each
// into the shared Sorter.
func acceptLoop(listener *ioc.TCPSocket, pctx *nidas.PipelineContext, sorter *nidas.Sorter, log zerolog.Logger) {
	for {
		clone, err := listener.Clone()
		if err != nil {
			log.Error().Err(err).Msg("nidasd: listener not cloneable")
			return
		}

		done := make(chan struct{})
		err = clone.RequestConnection(ioc.ConnectionRequesterFunc{
			OnConnected: func(c ioc.Channel) {
				defer close(done)
				go serveConn(c, pctx, sorter, log)
			},
			OnDisconnected: func(ioc.Channel) {
				close(done)
			},
		})
		if err != nil {
			log.Error().Err(err).Msg("nidasd: accept failed")
			return
		}
		<-done
	}
}

func serveConn(c ioc.Channel, pctx *nidas.PipelineContext, sorter *nidas.Sorter, log zerolog.Logger) {
	stream := iostream.New(c, iostream.IOStreamOptions{})
	in, err := iostream.NewInputStream(stream, iostream.InputStreamOptions{
		Pool:   pctx.Pool,
		Logger: log,
	})
	if err != nil {
		log.Warn().Err(err).Msg("nidasd: bad connection header")
		c.Close()
		return
	}

	in.AddSampleClient(sorter)
	if err := in.ReadSamples(); err != nil {
		log.Info().Err(err).Msg("nidasd: input connection ended")
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Info().Str("addr", addr).Msg("nidasd: serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("nidasd: metrics server exited")
	}
}

func waitForSignal(log zerolog.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info().Str("signal", s.String()).Msg("nidasd: shutting down")
}

func newLogger(foreground bool) zerolog.Logger {
	if foreground {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	// syslog is not available in a portable way from the standard
	// library on every target platform nidasd runs on; foreground mode
	// is the supported path in this rewrite, matching how most of the
	// pack's own daemons default to stderr+systemd/journald capture
	// rather than calling out to syslog directly.
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// vim: foldmethod=marker
