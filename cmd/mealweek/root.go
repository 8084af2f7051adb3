package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mealweek/internal/app"
	"mealweek/internal/config"
	"mealweek/internal/logging"
	"mealweek/internal/mealplan"
	"mealweek/internal/recipe"
	"mealweek/internal/search"
)

// cli carries the application shared by every subcommand.
type cli struct {
	configPath string
	app        *app.App
	now        func() time.Time
}

// execute runs the command line args and releases the application
// afterwards, even when the command fails.
func (c *cli) execute(ctx context.Context, args []string, out io.Writer) error {
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)

	err := root.ExecuteContext(ctx)
	if cerr := c.close(); err == nil {
		err = cerr
	}
	return err
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mealweek",
		Short:         "Plan a week of meals from TheMealDB",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("MEALWEEK_CONFIG"), "path to a JSON or YAML config file")

	root.AddCommand(
		c.searchCmd(),
		c.categoryCmd(),
		c.categoriesCmd(),
		c.showCmd(),
		c.planCmd(),
		c.shoppingCmd(),
	)
	return root
}

func (c *cli) open(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// The CLI only logs warnings so command output stays readable.
	level := cfg.LogLevel
	if level == "info" {
		level = "warn"
	}
	logger, err := logging.New(level)
	if err != nil {
		return err
	}

	c.app, err = app.New(cmd.Context(), cfg, logger)
	return err
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func (c *cli) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <name>",
		Short: "Search recipes by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state := c.app.Search.SearchRecipes(cmd.Context(), strings.Join(args, " "))
			return printResults(cmd.OutOrStdout(), state)
		},
	}
}

func (c *cli) categoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "category <name>",
		Short: "List the recipes of a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state := c.app.Search.FilterByCategory(cmd.Context(), args[0])
			return printResults(cmd.OutOrStdout(), state)
		},
	}
}

func (c *cli) categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List recipe categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := c.app.Client.GetCategories(cmd.Context())
			if err != nil {
				return err
			}
			for _, cat := range categories {
				fmt.Fprintln(cmd.OutOrStdout(), cat.Name)
			}
			return nil
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a recipe's ingredients and instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.app.Client.GetRecipeDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("recipe %s not found", args[0])
			}
			printRecipe(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func (c *cli) planCmd() *cobra.Command {
	plan := &cobra.Command{
		Use:   "plan",
		Short: "Show or edit the weekly meal plan",
	}

	var date string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the week containing --date (today by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := c.now()
			if date != "" {
				parsed, err := mealplan.ParseDateKey(date)
				if err != nil {
					return err
				}
				day = parsed
			}
			printWeek(cmd.OutOrStdout(), mealplan.Week(c.app.Store.MealPlan(), day))
			return nil
		},
	}
	show.Flags().StringVar(&date, "date", "", "any day of the week to show (YYYY-MM-DD)")

	add := &cobra.Command{
		Use:   "add <date> <recipe-id>",
		Short: "Assign a recipe to a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := mealplan.ParseDateKey(args[0]); err != nil {
				return err
			}
			r, err := c.app.Client.GetRecipeDetails(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("recipe %s not found", args[1])
			}
			c.app.Store.AddMeal(args[0], *r)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], r.Name)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <date>",
		Short: "Clear one day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := mealplan.ParseDateKey(args[0]); err != nil {
				return err
			}
			c.app.Store.RemoveMeal(args[0])
			return nil
		},
	}

	clearAll := &cobra.Command{
		Use:   "clear",
		Short: "Remove every planned meal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.Store.ClearMealPlan()
			return nil
		},
	}

	plan.AddCommand(show, add, remove, clearAll)
	return plan
}

func (c *cli) shoppingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shopping",
		Short: "Print the shopping list for every planned meal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := c.app.Shopping.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No meals planned yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, item := range items {
				fmt.Fprintf(w, "[ ] %s\t%s\n", item.Name, item.Measure)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			c.app.Logger.Debug("shopping list printed", zap.Int("items", len(items)))
			return nil
		},
	}
}

func printResults(out io.Writer, state search.State) error {
	if state.Status == search.StatusErrored {
		return errors.New(state.Error)
	}
	if len(state.Results) == 0 {
		fmt.Fprintln(out, "No recipes found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY")
	for _, r := range state.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Name, r.Category)
	}
	return w.Flush()
}

func printRecipe(out io.Writer, r *recipe.Recipe) {
	fmt.Fprintf(out, "%s (%s)\n", r.Name, r.ID)
	if r.Category != "" || r.Area != "" {
		fmt.Fprintf(out, "%s · %s\n", r.Category, r.Area)
	}
	if len(r.Tags) > 0 {
		fmt.Fprintf(out, "Tags: %s\n", strings.Join(r.Tags, ", "))
	}

	fmt.Fprintln(out, "\nIngredients:")
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, ing := range r.Ingredients {
		fmt.Fprintf(w, "  %s\t%s\n", ing.Name, ing.Measure)
	}
	w.Flush()

	if r.Instructions != "" {
		fmt.Fprintf(out, "\nInstructions:\n%s\n", r.Instructions)
	}
	if r.YoutubeURL != "" {
		fmt.Fprintf(out, "\nVideo: %s\n", r.YoutubeURL)
	}
}

func printWeek(out io.Writer, week []mealplan.Day) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, d := range week {
		meal := "-"
		if d.Recipe != nil {
			meal = fmt.Sprintf("%s (%s)", d.Recipe.Name, d.Recipe.ID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Display, meal)
	}
	w.Flush()
}
