package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-isatty"
	"github.com/phuslu/log"
	"github.com/urfave/cli/v2"

	"github.com/promptforge/promptforge/messages"
	"github.com/promptforge/promptforge/renderer"
	"github.com/promptforge/promptforge/templates"
	"github.com/promptforge/promptforge/tokenizers"
	"github.com/promptforge/promptforge/util/fileutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var templateName string
var templateFile string
var inputPath string
var outputPath string
var modelPath string
var tokenizerRuntime string
var videoBackend string
var numFrames uint
var openaiFormat bool
var generationPrompt bool
var tokenize bool

type encodedLine struct {
	Text          string   `json:"text,omitempty"`
	InputIDs      []uint32 `json:"input_ids,omitempty"`
	AttentionMask []uint32 `json:"attention_mask,omitempty"`
	ImageSizes    [][2]int `json:"image_sizes,omitempty"`
	PixelShape    []int    `json:"pixel_shape,omitempty"`
}

var renderCommand = &cli.Command{
	Name:  "render",
	Usage: "Render multimodal conversations through a chat template",
	Description: `Render expects conversations in .jsonl format: each line is either a JSON array
of messages or an object with a "messages" key. Message content is a string or a
list of typed content items ({"type":"text"|"image"|"video", ...}).`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "template",
			Usage:       "Name of a registered chat template",
			Aliases:     []string{"t"},
			Destination: &templateName,
			Value:       "chatml",
		},
		&cli.StringFlag{
			Name:        "template-file",
			Usage:       "Path to a custom template source, overrides --template",
			Destination: &templateFile,
		},
		&cli.StringFlag{
			Name:        "input",
			Usage:       "Path to a .jsonl file with conversations. If omitted, input is read from stdin",
			Aliases:     []string{"i"},
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Usage:       "Path to write output to. If omitted, output is sent to stdout",
			Aliases:     []string{"o"},
			Destination: &outputPath,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Path to a model directory with tokenizer.json, required with --tokenize",
			Aliases:     []string{"m"},
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "tokenizer-runtime",
			Usage:       "Tokenizer runtime to use: GO or RUST",
			Destination: &tokenizerRuntime,
			Value:       tokenizers.RuntimeGo,
		},
		&cli.StringFlag{
			Name:        "video-backend",
			Usage:       "Video load backend for frame sampling",
			Destination: &videoBackend,
		},
		&cli.UintFlag{
			Name:        "num-frames",
			Usage:       "Number of frames to sample per video item, 0 samples all",
			Destination: &numFrames,
		},
		&cli.BoolFlag{
			Name:        "openai",
			Usage:       "Treat input messages as OpenAI chat format",
			Destination: &openaiFormat,
		},
		&cli.BoolFlag{
			Name:        "generation-prompt",
			Usage:       "Append the assistant-turn opener after the last message",
			Aliases:     []string{"g"},
			Destination: &generationPrompt,
		},
		&cli.BoolFlag{
			Name:        "tokenize",
			Usage:       "Tokenize the rendered string and resolve media into tensors",
			Destination: &tokenize,
		},
	},
	Action: func(ctx *cli.Context) error {
		template, err := resolveTemplate()
		if err != nil {
			return err
		}

		var rendererOpts []renderer.Option
		if tokenize {
			if modelPath == "" {
				return errors.New("--tokenize requires --model")
			}
			tokenizer, tkErr := tokenizers.Load(modelPath, tokenizerRuntime, 0)
			if tkErr != nil {
				return tkErr
			}
			defer func() {
				if closeErr := tokenizer.Close(); closeErr != nil {
					log.Error().Err(closeErr).Msg("closing tokenizer")
				}
			}()
			rendererOpts = append(rendererOpts, renderer.WithTokenizer(tokenizer))
		}

		r, err := renderer.New(template, rendererOpts...)
		if err != nil {
			return err
		}

		reader, closeInput, err := openInput()
		if err != nil {
			return err
		}
		defer closeInput()

		writer, closeOutput, err := openOutput()
		if err != nil {
			return err
		}
		defer closeOutput()

		opts := renderer.Options{
			AddGenerationPrompt: generationPrompt,
			Tokenize:            tokenize,
			ReturnDict:          true,
			NumFrames:           numFrames,
			VideoLoadBackend:    videoBackend,
		}

		lines := 0
		scanner := bufio.NewReader(reader)
		for {
			line, readErr := fileutil.ReadLine(scanner)
			if len(line) > 0 {
				if processErr := processLine(ctx.Context, r, line, opts, writer); processErr != nil {
					return fmt.Errorf("line %d: %w", lines+1, processErr)
				}
				lines++
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				return readErr
			}
		}
		log.Info().Int("conversations", lines).Str("template", template.Name).Msg("render complete")
		return nil
	},
}

var templatesCommand = &cli.Command{
	Name:  "templates",
	Usage: "List the registered chat templates",
	Action: func(_ *cli.Context) error {
		for _, name := range templates.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

func resolveTemplate() (*templates.Template, error) {
	if templateFile != "" {
		source, err := fileutil.ReadFileBytes(templateFile)
		if err != nil {
			return nil, err
		}
		template := &templates.Template{Name: templateFile, Source: string(source)}
		return template, nil
	}
	return templates.Lookup(templateName)
}

func openInput() (io.Reader, func(), error) {
	if inputPath != "" {
		file, err := fileutil.OpenFile(inputPath)
		if err != nil {
			return nil, nil, err
		}
		return file, func() { _ = file.Close() }, nil
	}
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return nil, nil, errors.New("no input provided: pass --input or pipe conversations to stdin")
	}
	return os.Stdin, func() {}, nil
}

func openOutput() (io.Writer, func(), error) {
	if outputPath == "" {
		return os.Stdout, func() {}, nil
	}
	writer, err := fileutil.NewFileWriter(outputPath)
	if err != nil {
		return nil, nil, err
	}
	return writer, func() { _ = writer.Close() }, nil
}

func parseConversation(line []byte) (messages.Conversation, error) {
	if openaiFormat {
		return messages.ParseOpenAI(line)
	}
	trimmed := strings.TrimSpace(string(line))
	if strings.HasPrefix(trimmed, "{") {
		var wrapper struct {
			Messages messages.Conversation `json:"messages"`
		}
		if err := json.Unmarshal(line, &wrapper); err != nil {
			return nil, err
		}
		return wrapper.Messages, nil
	}
	var conversation messages.Conversation
	if err := json.Unmarshal(line, &conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

func processLine(ctx context.Context, r *renderer.Renderer, line []byte, opts renderer.Options, writer io.Writer) error {
	conversation, err := parseConversation(line)
	if err != nil {
		return err
	}
	output, err := r.Render(ctx, conversation, opts)
	if err != nil {
		return err
	}
	if !opts.Tokenize {
		_, err = fmt.Fprintln(writer, output.Text)
		return err
	}
	encoded := encodedLine{
		Text:          output.Text,
		InputIDs:      output.InputIDs,
		AttentionMask: output.AttentionMask,
		ImageSizes:    output.ImageSizes,
	}
	if output.PixelValues != nil {
		encoded.PixelShape = []int(output.PixelValues.Shape())
	}
	payload, err := json.Marshal(encoded)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(writer, string(payload))
	return err
}

func main() {
	log.DefaultLogger = log.Logger{
		Level:  log.InfoLevel,
		Writer: &log.ConsoleWriter{ColorOutput: isatty.IsTerminal(os.Stderr.Fd())},
	}
	app := &cli.App{
		Name:     "promptforge",
		Usage:    "Render multimodal chat prompts",
		Commands: []*cli.Command{renderCommand, templatesCommand},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("promptforge failed")
	}
}
