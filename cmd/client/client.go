package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"hati/internal/common"
	hatiNet "hati/internal/net"
)

func main() {
	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the matcher server")
	sender := flag.String("sender", "", "Hex sender public key (compulsory for place)")
	action := flag.String("action", "place", "Action: ['place', 'cancel', 'status', 'depth', 'delete']")
	pairStr := flag.String("pair", "NATIVE-NATIVE", "Trading pair (amountAsset-priceAsset)")

	// Order Parameters
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	amount := flag.Uint64("amount", 10, "Order amount")
	price := flag.Uint64("price", 100, "Limit price")
	fee := flag.Uint64("fee", 300000, "Matcher fee")
	ttl := flag.Duration("ttl", 24*time.Hour, "Time until the order expires")

	// Cancel Parameters
	orderID := flag.String("id", "", "ID of the order to cancel")

	flag.Parse()

	pair, err := common.ParseAssetPair(*pairStr)
	if err != nil {
		log.Fatalf("Invalid pair %q: %v", *pairStr, err)
	}

	// Connect to Server
	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", *serverAddr)

	// Start Listening for Reports (Async)
	go readReports(conn)

	side := common.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Sell
	}

	// Execute Action
	switch strings.ToLower(*action) {
	case "place":
		if *sender == "" {
			fmt.Println("Error: -sender is compulsory for place.")
			flag.Usage()
			os.Exit(1)
		}
		msg := hatiNet.NewOrderMessage{
			Pair:       pair,
			Side:       side,
			Amount:     *amount,
			Price:      *price,
			Expiration: uint64(time.Now().Add(*ttl).UnixMilli()),
			MatcherFee: *fee,
			Version:    1,
			Sender:     *sender,
		}
		if _, err := conn.Write(hatiNet.EncodeNewOrder(msg)); err != nil {
			log.Fatalf("Failed to place order: %v", err)
		}
		fmt.Printf("-> Sent %s Order: %s %d @ %d\n", strings.ToUpper(*sideStr), pair.Key(), *amount, *price)

	case "cancel":
		if *orderID == "" {
			log.Fatal("Error: -id is required for cancellation")
		}
		msg := hatiNet.CancelOrderMessage{Pair: pair, OrderID: *orderID}
		if _, err := conn.Write(hatiNet.EncodeCancelOrder(msg)); err != nil {
			log.Fatalf("Failed to send cancel request: %v", err)
		}
		fmt.Printf("-> Sent Cancel Request for %s\n", *orderID)

	case "status":
		if _, err := conn.Write(hatiNet.EncodePairMessage(hatiNet.MarketStatus, pair)); err != nil {
			log.Fatalf("Failed to send status request: %v", err)
		}

	case "depth":
		if _, err := conn.Write(hatiNet.EncodePairMessage(hatiNet.OrderBookReq, pair)); err != nil {
			log.Fatalf("Failed to send depth request: %v", err)
		}

	case "delete":
		if _, err := conn.Write(hatiNet.EncodePairMessage(hatiNet.DeleteBook, pair)); err != nil {
			log.Fatalf("Failed to send delete request: %v", err)
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	// Keep the client alive to receive reports
	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

// readReports prints every report frame the server sends back.
func readReports(conn net.Conn) {
	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 4*1024)
	for {
		n, err := conn.Read(chunk)
		if err != nil {
			if err != io.EOF {
				log.Printf("Read error: %v", err)
			}
			return
		}
		buf = append(buf, chunk[:n]...)
		for {
			report, consumed, err := hatiNet.ParseReport(buf)
			if err != nil {
				break // incomplete frame, read more
			}
			buf = buf[consumed:]
			printReport(report)
		}
	}
}

func printReport(r hatiNet.Report) {
	switch r.TypeOf {
	case hatiNet.OrderAcceptedReport:
		fmt.Printf("<- ACCEPTED %s\n", r.Body)
	case hatiNet.OrderCanceledReport:
		fmt.Printf("<- CANCELED %s\n", r.Body)
	case hatiNet.CancelRejectedReport:
		fmt.Printf("<- CANCEL REJECTED %s\n", r.Body)
	case hatiNet.ErrorReport:
		fmt.Printf("<- ERROR %s\n", r.Body)
	case hatiNet.MarketStatusReport:
		fmt.Printf("<- STATUS %s\n", r.Body)
	case hatiNet.OrderBookReport:
		fmt.Printf("<- DEPTH %s\n", r.Body)
	default:
		fmt.Printf("<- UNKNOWN REPORT %d\n", r.TypeOf)
	}
}
