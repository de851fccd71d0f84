package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Usage example on the command line:
// > go run main.go -url=http://localhost:8080/healthz -timeout=2m
func main() {
	url := flag.String("url", "http://localhost:8080/healthz", "the health endpoint to poll")
	interval := flag.Duration("interval", 5*time.Second, "the pause between two attempts")
	timeout := flag.Duration("timeout", 0, "give up after this long; 0 waits forever")
	flag.Parse()

	client := &http.Client{Timeout: *interval}
	start := time.Now()
	for {
		res, err := client.Get(*url)
		if err == nil {
			res.Body.Close()
			if res.StatusCode == http.StatusOK {
				logrus.WithField("url", *url).Info("service is available")
				return
			}
			logrus.WithField("status", res.StatusCode).Info("service not ready")
		} else {
			logrus.WithError(err).Info("service not reachable")
		}
		waited := time.Since(start)
		if *timeout > 0 && waited >= *timeout {
			logrus.WithField("waited", waited.Round(time.Second).String()).Error("giving up")
			os.Exit(1)
		}
		logrus.Infof("Waiting %d seconds", int(waited.Seconds()))
		time.Sleep(*interval)
	}
}
