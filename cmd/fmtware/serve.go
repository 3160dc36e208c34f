package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/cobra"

	"github.com/bjaus/fmtware"
)

func newServeCmd() *cobra.Command {
	var (
		opts     options
		addr     string
		file     string
		fallback string
	)
	cmd := &cobra.Command{
		Use:   "serve --file <json>",
		Short: "serve a JSON file in the format each request asks for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			log := opts.logger()
			fw, err := opts.formatter(log, fmtware.WithFormat(fmtware.FromQuery(fallback)))
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           gzhttp.GzipHandler(fw.Middleware(fileHandler(file))),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errc := make(chan error, 1)
			go func() {
				log.Info("listening", "addr", addr, "file", file)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
	fs := cmd.Flags()
	opts.addFlags(fs)
	fs.StringVar(&addr, "addr", ":8080", "listen address")
	fs.StringVar(&file, "file", "", "JSON file to serve")
	fs.StringVar(&fallback, "format", fmtware.JSON, "format used when a request has no ?format=")
	return cmd
}

// fileHandler serves the current contents of path as JSON.
func fileHandler(path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
}
