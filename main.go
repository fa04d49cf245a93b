// Command imagesync synchronizes product catalog images from the vendor
// storefront to local disk and cloud storage.
package main

import "github.com/cartx/imagesync/cmd"

func main() {
	cmd.Execute()
}
