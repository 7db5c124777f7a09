/*
Copyright © 2024 the terndata.flux authors.
This file is part of terndata.flux.

terndata.flux is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

terndata.flux is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with terndata.flux.  If not, see <http://www.gnu.org/licenses/>.*/

// Command ternflux is a command-line interface for the TERN OzFlux
// flux-tower data catalog.
package main

import (
	"github.com/ternaustralia/terndata.flux/fluxutil"
)

func main() {
	if err := fluxutil.Root.Execute(); err != nil {
		fluxutil.Fatal(err)
	}
}
