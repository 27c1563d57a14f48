package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mastercactapus/cncstream/devicedb"
	"github.com/mastercactapus/cncstream/serialport"
	"github.com/mastercactapus/cncstream/spjs"
	"github.com/mastercactapus/cncstream/stream"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("could not load .env")
	}

	list := flag.Bool("list", false, "List candidate controller ports and exit.")
	port := flag.String("port", envDefault("CNCSTREAM_PORT", ""), "Serial device to open.")
	baud := flag.Int("baud", envIntDefault("CNCSTREAM_BAUD", 0), "Baud rate override.")
	profileName := flag.String("profile", envDefault("CNCSTREAM_PROFILE", "grbl"), "Controller profile name.")
	devices := flag.String("devices", envDefault("CNCSTREAM_DEVICES", ""), "Optional device profile YAML file.")
	bridge := flag.String("spjs", envDefault("CNCSTREAM_SPJS", ""), "Serial-Port-JSON-Server URL instead of a local port.")
	file := flag.String("file", "", "G-code file to stream.")
	metricsAddr := flag.String("metrics", envDefault("CNCSTREAM_METRICS", ""), "Listen address for Prometheus metrics (e.g. :9100).")
	verbose := flag.Bool("v", false, "Debug logging.")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	log := logrus.WithField("component", "cncstream")

	if *list {
		ports, err := serialport.ListPorts()
		if err != nil {
			log.WithError(err).Fatal("list ports")
		}
		for _, name := range ports {
			fmt.Println(name)
		}
		return
	}

	profiles := devicedb.Builtin()
	if *devices != "" {
		var err error
		profiles, err = devicedb.Load(*devices)
		if err != nil {
			log.WithError(err).Fatal("load device profiles")
		}
	}
	profile, ok := devicedb.Find(profiles, *profileName)
	if !ok {
		log.WithField("profile", *profileName).Fatal("unknown profile")
	}
	if *baud > 0 {
		profile.BaudRate = *baud
	}

	// The bridge transport delivers lines from its own goroutines, which
	// can start before the streamer is constructed. Handlers load it
	// through an atomic pointer and drop lines that arrive earlier.
	var sref atomic.Pointer[stream.Streamer]
	handleLine := func(line string) {
		s := sref.Load()
		if s == nil {
			return
		}
		if err := s.HandleData(line); err != nil {
			log.WithError(err).Error("session failed")
		}
	}

	var tr stream.Transport
	switch {
	case *bridge != "":
		cli := spjs.NewClient(*bridge, func(portName, line string) {
			if portName == *port {
				handleLine(line)
			}
		})
		remote, err := cli.OpenPort(*port, profile.BaudRate)
		if err != nil {
			log.WithError(err).Fatal("open bridge port")
		}
		tr = remote
	case *port != "":
		local, err := serialport.Open(*port, profile.BaudRate)
		if err != nil {
			log.WithError(err).Fatal("open port")
		}
		defer local.Close()
		tr = local
	default:
		log.Fatal("either -port or -spjs is required")
	}

	s := stream.New(tr, profile.Dialect(), profile.StreamConfig())
	sref.Store(s)

	if *metricsAddr != "" {
		if err := s.Register(prometheus.DefaultRegisterer); err != nil {
			log.WithError(err).Fatal("register metrics")
		}
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	if local, ok := tr.(*serialport.Port); ok {
		go func() {
			if err := local.ReadLines(handleLine); err != nil {
				log.WithError(err).Fatal("serial connection lost")
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *file == "" {
		watchStatus(ctx, s, tr, log)
		return
	}

	f, err := os.Open(*file)
	if err != nil {
		log.WithError(err).Fatal("open g-code file")
	}

	job := s.NewJob(ctx, *file, f)
	for st := range job.Updates() {
		log.WithFields(logrus.Fields{
			"read":      st.Read,
			"sent":      st.Sent,
			"completed": st.Completed,
			"failed":    st.Failed,
		}).Info("job progress")
		if st.Done {
			break
		}
	}
	if err := job.Wait(); err != nil {
		log.WithError(err).Fatal("job failed")
	}
	log.Info("job complete")
}

// watchStatus polls the controller for status reports and prints them.
// GRBL's "?" is a realtime character that bypasses the receive buffer, so
// it goes straight to the transport rather than through the streamer.
func watchStatus(ctx context.Context, s *stream.Streamer, tr stream.Transport, log logrus.FieldLogger) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	events := s.Events()
	for {
		select {
		case <-ticker.C:
			if err := tr.Send([]byte("?")); err != nil {
				log.WithError(err).Fatal("status poll failed")
			}
		case ev := <-events:
			if ev.Kind == stream.EventStatus {
				log.WithField("state", ev.Status.State).Info("status")
			}
		case <-ctx.Done():
			return
		}
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
