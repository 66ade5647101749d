// -----------------------------------------------------------------------
// Playwright-based manual check of the Freshservice login flow
// -----------------------------------------------------------------------

package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Set FRESHSERVICE_DOMAIN, FRESHSERVICE_EMAIL and FRESHSERVICE_PASSWORD
// before running. The browser stays open afterwards so the captured
// session can be inspected in DevTools.

func main() {
	domain := os.Getenv("FRESHSERVICE_DOMAIN")
	email := os.Getenv("FRESHSERVICE_EMAIL")
	password := os.Getenv("FRESHSERVICE_PASSWORD")
	if domain == "" || email == "" || password == "" {
		log.Fatal("FRESHSERVICE_DOMAIN, FRESHSERVICE_EMAIL and FRESHSERVICE_PASSWORD must be set")
	}

	targetUrl := domain
	if !strings.Contains(targetUrl, "://") {
		targetUrl = "https://" + targetUrl
	}
	targetUrl += "/login"

	// Install playwright browsers if needed
	err := playwright.Install()
	if err != nil {
		log.Fatalf("Could not install playwright: %v", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		log.Fatalf("Could not start playwright: %v", err)
	}
	defer pw.Stop()

	// Use a temporary directory for isolation
	tempDir, err := os.MkdirTemp("", "playwright-profile-")
	if err != nil {
		log.Fatalf("Could not create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	browser, err := pw.Chromium.LaunchPersistentContext(tempDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(false),
		Timeout:  playwright.Float(60000),
	})
	if err != nil {
		log.Fatalf("Could not launch browser: %v", err)
	}
	defer browser.Close()

	// Get the initial page (or create a new one if none exists)
	var page playwright.Page
	if len(browser.Pages()) > 0 {
		page = browser.Pages()[0]
	} else {
		page, err = browser.NewPage()
		if err != nil {
			log.Fatalf("Could not create new page: %v", err)
		}
	}

	// --- LOGIN SEQUENCE ---
	log.Printf("Navigating to %s...", targetUrl)
	if _, err := page.Goto(targetUrl, playwright.PageGotoOptions{
		Timeout: playwright.Float(30000),
	}); err != nil {
		log.Fatalf("Could not navigate: %v", err)
	}

	// Enter email
	log.Printf("Entering email...")
	page.WaitForSelector("input[type='email'], input[name*='email'], #user_email", playwright.PageWaitForSelectorOptions{
		State: playwright.WaitForSelectorStateVisible,
	})
	if err := page.Fill("input[type='email'], input[name*='email'], #user_email", email); err != nil {
		log.Fatalf("Could not enter email: %v", err)
	}

	// Enter password
	log.Printf("Entering password...")
	if err := page.Fill("input[type='password'], #user_password", password); err != nil {
		log.Fatalf("Could not enter password: %v", err)
	}

	// Click submit
	if err := page.Click("button[type='submit'], input[type='submit']"); err != nil {
		log.Fatalf("Could not click submit: %v", err)
	}

	// Wait for navigation to complete
	log.Printf("Waiting for login to complete...")
	page.WaitForTimeout(5000)

	currentUrl := page.URL()
	if strings.Contains(currentUrl, "/login") {
		log.Printf("Still on login page: %s (login likely failed)", currentUrl)
	} else {
		log.Printf("Successfully logged in, landed on: %s", currentUrl)
	}

	// Dump session cookies in the format POST /api/set-cookies expects
	cookies, err := browser.Cookies()
	if err != nil {
		log.Printf("Could not read cookies: %v", err)
	} else {
		var parts []string
		for _, c := range cookies {
			parts = append(parts, c.Name+"="+c.Value)
		}
		log.Printf("Cookie header value:\n%s", strings.Join(parts, "; "))
	}

	log.Printf("Browser will remain open for 3 minutes for manual inspection...")
	time.Sleep(180 * time.Second)
}
