package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ibairos/radiofile/pkg/blob"
	"github.com/ibairos/radiofile/pkg/radioport"
	"github.com/ibairos/radiofile/pkg/session"
	"github.com/ibairos/radiofile/pkg/telemetry"
)

var (
	role      = flag.String("role", "", "Session role: sender or receiver")
	variant   = flag.String("variant", "stopwait", "ARQ variant: stopwait or burst")
	txDevice  = flag.String("tx-device", "/dev/ttyUSB0", "Serial device used to transmit")
	rxDevice  = flag.String("rx-device", "/dev/ttyUSB1", "Serial device used to receive")
	baudRate  = flag.Int("baud", 57600, "Serial baud rate")
	filePath  = flag.String("file", "", "File to send (sender) or write (receiver)")
	chunkSize = flag.Int("chunk-size", 28, "Payload bytes per data chunk (both variants)")
	burstSize = flag.Int("burst-size", 20, "Chunks per burst window")
	compress  = flag.Bool("compress", false, "Run the file through the external archiver before sending")
	archive   = flag.String("archive-path", "", "Path for the intermediate archive file (compress/decompress)")
	outDir    = flag.String("out-dir", ".", "Output directory for a decompressed receive")

	redisAddr = flag.String("redis-addr", "", "Optional Redis address for session telemetry")
	redisPass = flag.String("redis-pass", "", "Redis password")
	redisDB   = flag.Int("redis-db", 0, "Redis database number")
	redisKey  = flag.String("redis-key", "radiofile:session", "Redis hash/channel key for telemetry")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting radiofile %s/%s", *role, *variant)
	log.Printf("TX device: %s, RX device: %s, baud: %d", *txDevice, *rxDevice, *baudRate)

	port, err := radioport.OpenSerial(*txDevice, *rxDevice, *baudRate)
	if err != nil {
		log.Fatalf("Failed to open serial port: %v", err)
	}
	defer port.Close()
	log.Printf("Serial port opened")

	var publisher *telemetry.Publisher
	if *redisAddr != "" {
		publisher, err = telemetry.NewPublisher(*redisAddr, *redisPass, *redisDB, *redisKey)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer publisher.Close()
		log.Printf("Connected to Redis for telemetry")
	}

	orch := &session.Orchestrator{
		Role:       session.Role(*role),
		Variant:    session.Variant(*variant),
		Port:       port,
		ChunkSize:  *chunkSize,
		BurstSize:  *burstSize,
		AckTimeout: defaultAckTimeout(*variant),
		Telemetry:  publisher,
	}

	switch session.Role(*role) {
	case session.RoleSender:
		orch.Source = sourceFor(*filePath)
	case session.RoleReceiver:
		orch.Sink = sinkFor(*filePath)
	default:
		log.Fatalf("Unknown role %q: must be %q or %q", *role, session.RoleSender, session.RoleReceiver)
	}

	ok, err := orch.Run()
	if err != nil {
		log.Printf("Session ended with error: %v", err)
	}
	if !ok {
		log.Printf("Session failed")
		os.Exit(1)
	}
	log.Printf("Session completed successfully")
}

func sourceFor(path string) blob.Source {
	if !*compress {
		return &blob.FileSource{Path: path}
	}
	return &blob.CompressSource{
		RawPath:     path,
		ArchivePath: archivePathOrDefault(path),
		Archiver:    blob.Default7z(5),
	}
}

func sinkFor(path string) blob.Sink {
	if !*compress {
		return &blob.FileSink{Path: path}
	}
	return &blob.DecompressSink{
		ArchivePath: archivePathOrDefault(path),
		OutDir:      *outDir,
		Archiver:    blob.Default7z(5),
	}
}

func archivePathOrDefault(path string) string {
	if *archive != "" {
		return *archive
	}
	return path + ".7z"
}

func defaultAckTimeout(variant string) time.Duration {
	if variant == string(session.VariantBurst) {
		return 30 * time.Millisecond
	}
	return 10 * time.Millisecond
}
