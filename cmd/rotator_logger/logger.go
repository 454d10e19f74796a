// Command rotator_logger records the k3ngd status stream in InfluxDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/influxdata/influxdb-client-go/api/write"
	"github.com/w1xm/k3ng_interface/internal/config"
	"github.com/w1xm/k3ng_interface/internal/logging"
	"go.uber.org/zap"
)

const measurement = "rotator.status"

var (
	configPath = flag.String("config", "", "YAML configuration file")
	address    = flag.String("address", "ws://localhost:8502/api/ws", "k3ngd websocket address")
)

func main() {
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	influx := cfg.Influx
	if v := os.Getenv("INFLUX_SERVER"); v != "" {
		influx.Server = v
	}
	if v := os.Getenv("INFLUX_TOKEN"); v != "" {
		influx.Token = v
	}
	if influx.Server == "" {
		influx.Server = "http://localhost:9999"
	}
	if influx.Org == "" {
		influx.Org = "w1xm"
	}
	if influx.Bucket == "" {
		influx.Bucket = "rotator.raw"
	}

	client := influxdb2.NewClient(influx.Server, influx.Token)
	defer client.Close()
	// Get non-blocking write client
	writeApi := client.WriteApi(influx.Org, influx.Bucket)
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			logger.Warn("write error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("logging rotator status", zap.String("address", *address), zap.String("influx", influx.Server), zap.String("bucket", influx.Bucket))
	for ctx.Err() == nil {
		if err := logData(ctx, *address, writeApi); err != nil {
			logger.Warn("status stream", zap.Error(err))
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

// flattenStatus turns nested JSON into dotted field names.
func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	case nil:
	default:
		if prefix == "" {
			return
		}
		fields[prefix[1:]] = status
	}
}

// pointWriter is the part of api.WriteApi the logger uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

var _ pointWriter = api.WriteApi(nil)

// logData copies status messages from the websocket at url until it fails.
// Command results sharing the stream are skipped.
func logData(ctx context.Context, url string, w pointWriter) error {
	defer w.Flush()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		var status map[string]interface{}
		if err := conn.ReadJSON(&status); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if _, ok := status["command"]; ok {
			continue
		}
		fields := make(map[string]interface{})
		flattenStatus(fields, status, "")
		at := time.Now()
		if s, ok := fields["time"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				at = t
			}
			delete(fields, "time")
		}
		// write asynchronously
		w.WritePoint(influxdb2.NewPoint(measurement, nil, fields, at))
	}
}
