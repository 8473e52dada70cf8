package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/tidwall/gjson"
)

// runStats fetches /v1/stats from a running gateway and prints a table.
func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:18090", "gateway base URL")
	raw := fs.Bool("json", false, "print the raw JSON response")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(*addr + "/v1/stats")
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: reading response: %v\n", err)
		return 1
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "stats: %s: %s\n", resp.Status, gjson.GetBytes(body, "error.message").String())
		return 1
	}
	if *raw {
		fmt.Println(string(body))
		return 0
	}
	printStats(os.Stdout, body)
	return 0
}

func printStats(out io.Writer, body []byte) {
	stats := gjson.ParseBytes(body)
	fmt.Fprintf(out, "requests: %d  cost: %.4f\n\n",
		stats.Get("totalRequests").Int(), stats.Get("totalCost").Float())

	per := stats.Get("perProvider").Map()
	ids := make([]string, 0, len(per))
	for id := range per {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tREQUESTS\tSUCCESS\tAVG LATENCY\tTOKENS")
	for _, id := range ids {
		p := per[id]
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%.0fms\t%d\n", id,
			p.Get("totalRequests").Int(),
			p.Get("successRate").Float()*100,
			p.Get("avgLatencyMs").Float(),
			p.Get("tokens").Int())
	}
	_ = tw.Flush()
}
