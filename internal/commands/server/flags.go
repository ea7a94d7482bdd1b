// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"github.com/spf13/pflag"

	"github.com/tombee/servectl/internal/lifecycle"
)

// bindStartFlags registers the flags shared by start and restart.
func bindStartFlags(fs *pflag.FlagSet, opts *lifecycle.StartOptions) {
	fs.BoolVarP(&opts.Dev, "dev", "d", false, "Run in the foreground with the development environment")
	fs.BoolVarP(&opts.Log, "log", "l", false, "Follow the server output after starting")
	fs.BoolVarP(&opts.Silent, "silent", "s", false, "Do not print the start banner")
}
