// Command iridium-sender submits a single Mobile-Terminated message to an
// Iridium SBD Direct-IP gateway and waits for its confirmation, exiting
// nonzero if the gateway reports a negative msg_status.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cycleg/libiridium"
)

func main() {
	host := flag.String("host", "", "Direct-IP gateway host")
	port := flag.Int("port", 10800, "Direct-IP gateway port")
	imei := flag.String("imei", "", "destination IMEI (15 digits)")
	msgID := flag.Uint("msg-id", 1, "unique client message id")
	priority := flag.Uint("priority", 4, "MT priority (1-5, clamped to 5 if out of range)")
	timeout := flag.Duration("timeout", 60*time.Second, "time to wait for a transmit result")
	flag.Parse()

	payload := flag.Arg(0)
	if *host == "" || *imei == "" || payload == "" {
		fmt.Fprintln(os.Stderr, "usage: iridium-sender -host HOST -imei IMEI [flags] <payload>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	lg := logrus.New()
	iridium.SetLogger(lg)

	header := iridium.MtHeader{
		UniqueClientMsgID: uint32(*msgID),
		IMEI:              iridium.IMEI(*imei),
	}
	msg, err := iridium.NewMtMessage(header, []byte(payload), uint16(*priority))
	if err != nil {
		lg.WithError(err).Fatal("build mt message")
	}

	result := make(chan int16, 1)
	txErr := make(chan error, 1)
	tx := iridium.NewTransmitter(*host, *port,
		iridium.WithLogger(lg),
		iridium.WithOnTransmitResult(func(status int16) {
			select {
			case result <- status:
			default:
			}
		}),
		iridium.WithOnError(func(err error) {
			select {
			case txErr <- err:
			default:
			}
		}),
	)
	tx.Start()
	defer tx.Stop()

	tx.Post(msg)

	select {
	case status := <-result:
		if status < 0 {
			lg.WithField("msg_status", status).Error("mt delivery failed")
			os.Exit(1)
		}
		lg.WithField("msg_status", status).Info("mt delivery confirmed")
	case err := <-txErr:
		lg.WithError(err).Warn("transmit attempt failed, will retry until timeout")
		select {
		case status := <-result:
			if status < 0 {
				os.Exit(1)
			}
			lg.WithField("msg_status", status).Info("mt delivery confirmed")
		case <-time.After(*timeout):
			lg.Error("timed out waiting for mt confirmation")
			os.Exit(1)
		}
	case <-time.After(*timeout):
		lg.Error("timed out waiting for mt confirmation")
		os.Exit(1)
	}
}
