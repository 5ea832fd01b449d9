package app

import (
	"context"
	"fmt"

	"p2pwatch/internal/offerfile"
)

// Doctor prints the effective configuration with secrets masked, plus the data on disk.
func (a *App) Doctor(ctx context.Context) error {
	out, err := a.Config.Redacted().YAML()
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "# effective configuration")
	fmt.Fprint(a.Out, string(out))

	rawDays, err := a.rawStore().Days()
	if err != nil {
		return err
	}
	processed, err := offerfile.Days(a.Config.App.DataDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "\n# data\nraw_days: %d\nprocessed_days: %d\n", len(rawDays), len(processed))
	if n := len(rawDays); n > 0 {
		fmt.Fprintf(a.Out, "latest_raw_day: %s\n", rawDays[n-1])
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		fmt.Fprintf(a.Out, "storage: error: %v\n", err)
		return nil
	}
	if store == nil {
		fmt.Fprintln(a.Out, "storage: disabled")
		return nil
	}
	defer closeStore()

	count, err := store.CountSamples(ctx)
	if err != nil {
		fmt.Fprintf(a.Out, "storage: error: %v\n", err)
		return nil
	}
	fmt.Fprintf(a.Out, "storage: %s (%d samples)\n", a.Config.Storage.Driver, count)
	return nil
}
