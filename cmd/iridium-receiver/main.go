// Command iridium-receiver runs a standalone Iridium SBD Direct-IP MO
// receive server: it binds a TCP listener, logs each delivered
// Mobile-Originated message, and, when -metrics-addr is set, exposes
// transmit/receive metrics over Prometheus's text exposition format.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cycleg/libiridium"
)

func main() {
	addr := flag.String("addr", iridium.DefaultReceiverAddress, "address to bind the MO receive server to")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	flag.Parse()

	lg := logrus.New()
	iridium.SetLogger(lg)

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := iridium.RegisterMetrics(reg); err != nil {
			lg.WithError(err).Fatal("register metrics")
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				lg.WithError(err).Error("metrics server")
			}
		}()
	}

	receiver := iridium.NewReceiver(*addr,
		iridium.WithReceiverLogger(lg),
		iridium.WithReceiverOnMessage(func(msg *iridium.MoMessage) {
			lg.WithFields(logrus.Fields{
				"imei":  msg.Header.IMEI,
				"momsn": msg.Header.MOMSN,
				"bytes": len(msg.Payload.Data),
			}).Info("mo message received")
		}),
		iridium.WithReceiverOnError(func(err error) {
			lg.WithError(err).Warn("mo session error")
		}),
	)

	if err := receiver.Start(); err != nil {
		lg.WithError(err).Fatal("start mo receiver")
	}
	lg.WithField("addr", *addr).Info("mo receiver listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-stop
	lg.WithField("signal", sig).Info("shutting down")

	if err := receiver.Stop(); err != nil {
		lg.WithError(err).Error("stop mo receiver")
		os.Exit(1)
	}
}
