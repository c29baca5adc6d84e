package describe

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/potholemap/potholemap/internal/ai"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/spf13/cobra"
)

var Group = &cobra.Group{
	ID:    "describe",
	Title: "Vision model",
}

func init() {
	Describe.Flags().String("model", "", "OpenAI model, defaults to the client's model")
}

var Describe = &cobra.Command{
	Use:     "describe <image-url>",
	GroupID: "describe",
	Short:   "Draft a report description",
	Long:    `Drafts a 311 report description from a street view image with OpenAI. Requires OPENAI_API_KEY.`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return errors.New("OPENAI_API_KEY not set")
		}
		model, _ := cmd.Flags().GetString("model")
		client := ai.NewClient(apiKey, ai.Options{BaseURL: os.Getenv("OPENAI_BASE_URL"), Model: model})

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		description, err := client.DescribePothole(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "describe pothole")
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), description)
		return errors.Wrap(err, "print description")
	},
}
