// Command intake-cli walks one applicant through the intake flow against a
// running server: phone verification, then one upload per required document.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/quickvisa/intake-backend/pkg/intake"
)

type options struct {
	server      string
	countryCode string
	phone       string
	name        string
	email       string
	destination string
	nationality string
	visaType    string
	files       map[intake.Slot]*string
	timeout     time.Duration
}

func parseFlags() options {
	opts := options{files: map[intake.Slot]*string{}}
	flag.StringVar(&opts.server, "server", "http://localhost:8080", "intake server base URL")
	flag.StringVar(&opts.countryCode, "country-code", "", "phone country code, e.g. +91")
	flag.StringVar(&opts.phone, "phone", "", "national phone number")
	flag.StringVar(&opts.name, "name", "", "applicant display name")
	flag.StringVar(&opts.email, "email", "", "applicant email (optional)")
	flag.StringVar(&opts.destination, "destination", "", "destination country")
	flag.StringVar(&opts.nationality, "nationality", "", "applicant nationality")
	flag.StringVar(&opts.visaType, "visa-type", "", "visa type")
	flag.DurationVar(&opts.timeout, "timeout", 90*time.Second, "per-upload timeout")
	opts.files[intake.SlotPassport] = flag.String("passport", "", "passport photo page image")
	opts.files[intake.SlotPassportFront] = flag.String("passport-front", "", "passport front page image")
	opts.files[intake.SlotPassportLastPage] = flag.String("passport-last-page", "", "passport last page image")
	opts.files[intake.SlotPhoto] = flag.String("photo", "", "applicant photo")
	flag.Parse()

	missing := []string{}
	for name, value := range map[string]string{
		"country-code": opts.countryCode,
		"phone":        opts.phone,
		"name":         opts.name,
		"destination":  opts.destination,
		"nationality":  opts.nationality,
		"visa-type":    opts.visaType,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) > 0 {
		log.Fatalf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return opts
}

func main() {
	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := intake.NewClient(opts.server, 2*opts.timeout)
	stdin := bufio.NewReader(os.Stdin)

	token, user, err := verifyPhone(ctx, client, stdin, opts)
	if err != nil {
		log.Fatalf("phone verification failed: %v", err)
	}
	fmt.Printf("Verified %s as %s\n", user.PhoneNumber, user.Name)

	session := intake.NewSession(intake.Identity{
		DisplayName: user.Name,
		PhoneNumber: user.PhoneNumber,
		Email:       opts.email,
		Nationality: opts.nationality,
		Destination: opts.destination,
		VisaType:    opts.visaType,
	})
	// Ctrl-C abandons in-flight uploads
	go func() {
		<-ctx.Done()
		session.Discard()
	}()

	uploader := intake.NewUploader(client, token, opts.timeout)
	applicationID := ""

	for {
		slot, ok := session.Next()
		if !ok {
			break
		}

		doc, err := readDocument(*opts.files[slot])
		if err != nil {
			log.Fatalf("%s: %v", slot, err)
		}

		fmt.Printf("Uploading %s (%s)...\n", slot, doc.Filename)
		resp, err := uploader.Upload(ctx, session, slot, doc)
		if err != nil {
			log.Fatalf("%s upload failed: %v", slot, err)
		}

		if resp.Data != nil {
			applicationID = resp.Data.ID
		}
		reportExtraction(slot, resp.Extraction)
	}

	if applicationID == "" {
		return
	}

	progress, err := client.Progress(ctx, token, applicationID)
	if err != nil {
		log.Fatalf("failed to load progress: %v", err)
	}
	fmt.Printf("Application %s: %d of %d documents on record, complete=%t\n",
		progress.ApplicationID, progress.FilesUploaded, progress.TotalFilesRequired, progress.Complete)
}

// verifyPhone requests a passcode and exchanges it for a session token. An
// empty answer at the prompt asks for a new code once the cooldown allows.
func verifyPhone(ctx context.Context, client *intake.Client, stdin *bufio.Reader, opts options) (string, *intake.User, error) {
	cooldown := intake.NewCooldown(intake.ResendCooldown)

	send := func() error {
		resp, err := client.SendCode(ctx, opts.countryCode, opts.phone)
		if err != nil {
			return err
		}
		cooldown.Restart()
		if resp.Code != "" {
			fmt.Printf("Development passcode: %s\n", resp.Code)
		} else {
			fmt.Println("Passcode sent.")
		}
		return nil
	}

	if err := send(); err != nil {
		return "", nil, err
	}

	for {
		fmt.Print("Enter passcode (empty to resend): ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return "", nil, fmt.Errorf("failed to read passcode: %w", err)
		}

		code := strings.TrimSpace(line)
		if code == "" {
			if !cooldown.Ready() {
				fmt.Printf("You can request a new code in %d seconds.\n", cooldown.Seconds())
				continue
			}
			if err := send(); err != nil {
				return "", nil, err
			}
			continue
		}

		resp, err := client.VerifyCode(ctx, opts.countryCode, opts.phone, code, opts.name)
		if err != nil {
			fmt.Printf("Verification failed: %v\n", err)
			continue
		}
		return resp.Token, resp.User, nil
	}
}

func readDocument(path string) (intake.Document, error) {
	if path == "" {
		return intake.Document{}, fmt.Errorf("no file given")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return intake.Document{}, err
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}
	return intake.Document{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Content:     content,
	}, nil
}

func reportExtraction(slot intake.Slot, report *intake.ExtractionReport) {
	switch {
	case report == nil || !report.Attempted:
		fmt.Printf("  %s stored\n", slot)
	case report.Succeeded:
		fmt.Printf("  %s stored, passport fields read\n", slot)
	default:
		fmt.Printf("  %s stored, fields could not be read: %s\n", slot, report.Error)
	}
}
