// Command mealweek searches TheMealDB and manages the weekly meal plan and
// shopping list from the terminal. It shares its storage with the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"
)

func main() {
	c := &cli{now: time.Now}
	if err := c.execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
